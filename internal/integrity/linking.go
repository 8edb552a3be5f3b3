package integrity

import (
	"fmt"

	"taskmaster-lite/internal/metastore"
)

// LinkingResult is the outcome of cross-checking PRD links and task
// back-references.
type LinkingResult struct {
	PRDsChecked  int     `json:"prdsChecked"`
	TasksChecked int     `json:"tasksChecked"`
	Valid        bool    `json:"valid"`
	Issues       []Issue `json:"issues"`
}

// CheckLinks verifies both directions of the PRD-task relation:
//
//   - every id in a PRD's linkedTasks resolves to a task (orphaned_task_link),
//     and a linked task that names a source PRD names this one
//     (prd_source_mismatch);
//   - every task whose prdSource names a PRD refers to a PRD that exists
//     (missing_prd_reference) and that lists the task (missing_task_link);
//   - a prdSource whose prdId and fileName name different PRDs is reported
//     as prd_source_mismatch unless a linking PRD already flagged the task.
//
// Issues come out in PRD index order, then task walk order.
func CheckLinks(prds *metastore.PRDIndex, tasks *metastore.TaskIndex) LinkingResult {
	res := LinkingResult{PRDsChecked: len(prds.PRDs), Issues: []Issue{}}
	flagged := map[metastore.TaskID]bool{}

	for _, p := range prds.PRDs {
		for _, id := range p.LinkedTasks {
			t := tasks.Find(id)
			if t == nil {
				res.Issues = append(res.Issues, Issue{
					Type:     IssueOrphanedTaskLink,
					Severity: SeverityError,
					Message:  fmt.Sprintf("PRD %s links task %s, which does not exist", p.ID, id),
					PRDID:    p.ID,
					TaskID:   id,
				})
				continue
			}
			if t.PRDSource == nil || t.PRDSource.FileName == "" || t.PRDSource.FileName == p.FileName {
				continue
			}
			flagged[id] = true
			res.Issues = append(res.Issues, Issue{
				Type:     IssuePRDSourceMismatch,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("task %s is linked from PRD %s but names %s as its source", id, p.ID, t.PRDSource.FileName),
				PRDID:    p.ID,
				TaskID:   id,
				Expected: p.FileName,
				Actual:   t.PRDSource.FileName,
			})
		}
	}

	tasks.Walk(func(id metastore.TaskID, t *metastore.Task) {
		res.TasksChecked++
		if t.PRDSource == nil || (t.PRDSource.FileName == "" && t.PRDSource.PRDID == "") {
			return
		}
		p := SourcePRD(prds, t.PRDSource)
		if p == nil {
			res.Issues = append(res.Issues, Issue{
				Type:     IssueMissingPRDReference,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("task %s names PRD %s, which is not in the index", id, sourceName(t.PRDSource)),
				TaskID:   id,
				Expected: sourceName(t.PRDSource),
			})
			return
		}
		if src := t.PRDSource; src.FileName != "" && src.PRDID != "" && src.PRDID != p.ID && !flagged[id] {
			res.Issues = append(res.Issues, Issue{
				Type:     IssuePRDSourceMismatch,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("task %s names %s as its source but records PRD id %s", id, src.FileName, src.PRDID),
				PRDID:    p.ID,
				TaskID:   id,
				Expected: p.ID,
				Actual:   src.PRDID,
			})
		}
		if !p.HasLinkedTask(id) {
			res.Issues = append(res.Issues, Issue{
				Type:     IssueMissingTaskLink,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("task %s names PRD %s as its source but is not in its linked tasks", id, p.ID),
				PRDID:    p.ID,
				TaskID:   id,
			})
		}
	})

	res.Valid = !hasErrors(res.Issues)
	return res
}

// SourcePRD resolves a task's back-reference. The file name wins when it
// resolves; the recorded PRD id is only a fallback.
func SourcePRD(prds *metastore.PRDIndex, src *metastore.PRDSource) *metastore.PRD {
	if src == nil {
		return nil
	}
	if src.FileName != "" {
		if p := prds.FindByFileName(src.FileName); p != nil {
			return p
		}
	}
	if src.PRDID != "" {
		return prds.FindByID(src.PRDID)
	}
	return nil
}

// LinkingPRDs returns the PRDs whose linkedTasks contain id.
func LinkingPRDs(prds *metastore.PRDIndex, id metastore.TaskID) []*metastore.PRD {
	var out []*metastore.PRD
	for _, p := range prds.PRDs {
		if p.HasLinkedTask(id) {
			out = append(out, p)
		}
	}
	return out
}

func sourceName(src *metastore.PRDSource) string {
	if src.FileName != "" {
		return src.FileName
	}
	return src.PRDID
}
