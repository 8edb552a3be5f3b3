package metastore

import (
	"math"
	"sort"
	"time"
)

// IndexMetadata is the bookkeeping block stored alongside the PRD list.
type IndexMetadata struct {
	LastUpdated time.Time `json:"lastUpdated"`
	TotalPRDs   int       `json:"totalPrds"`
}

// PRDIndex is the in-memory PRD collection.
type PRDIndex struct {
	SchemaVersion int           `json:"schemaVersion"`
	PRDs          []*PRD        `json:"prds"`
	Metadata      IndexMetadata `json:"metadata"`

	// Folded counts the records whose legacy linkedTaskIds field was folded
	// into linkedTasks when the index was loaded.
	Folded int `json:"-"`
}

// NewPRDIndex returns an empty index at the current schema version.
func NewPRDIndex() *PRDIndex {
	return &PRDIndex{SchemaVersion: SchemaVersion, PRDs: []*PRD{}}
}

// FindByID returns the PRD with the given ID, or nil.
func (x *PRDIndex) FindByID(id string) *PRD {
	for _, p := range x.PRDs {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// FindByFileName returns the first PRD whose file name matches, or nil.
func (x *PRDIndex) FindByFileName(name string) *PRD {
	for _, p := range x.PRDs {
		if p.FileName == name {
			return p
		}
	}
	return nil
}

// FindByStatus returns all PRDs with the given status, in index order.
func (x *PRDIndex) FindByStatus(status PRDStatus) []*PRD {
	var out []*PRD
	for _, p := range x.PRDs {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// Remove deletes the PRD with the given ID and reports whether it existed.
func (x *PRDIndex) Remove(id string) bool {
	for i, p := range x.PRDs {
		if p.ID == id {
			x.PRDs = append(x.PRDs[:i], x.PRDs[i+1:]...)
			return true
		}
	}
	return false
}

// Touch refreshes the metadata block before a save and replaces nil
// lists with empty ones so the index never stores null collections.
func (x *PRDIndex) Touch(now time.Time) {
	if x.SchemaVersion == 0 {
		x.SchemaVersion = SchemaVersion
	}
	if x.PRDs == nil {
		x.PRDs = []*PRD{}
	}
	for _, p := range x.PRDs {
		if p.LinkedTasks == nil {
			p.LinkedTasks = []TaskID{}
		}
	}
	x.Metadata.LastUpdated = now
	x.Metadata.TotalPRDs = len(x.PRDs)
}

// FoldLegacyLinks folds linkedTaskIds into linkedTasks on every record and
// returns how many records carried the legacy field.
func (x *PRDIndex) FoldLegacyLinks() int {
	n := 0
	for _, p := range x.PRDs {
		if p.FoldLegacyLinks() {
			n++
		}
	}
	return n
}

// Aggregate summarizes the PRD collection.
type Aggregate struct {
	TotalPRDs         int                `json:"totalPrds"`
	ByStatus          map[PRDStatus]int  `json:"byStatus"`
	ByPriority        map[Priority]int   `json:"byPriority"`
	ByComplexity      map[Complexity]int `json:"byComplexity"`
	TotalLinkedTasks  int                `json:"totalLinkedTasks"`
	AverageCompletion int                `json:"averageCompletion"`
	TotalFileSize     int64              `json:"totalFileSize"`
}

// AggregateStatistics counts PRDs by status, priority and complexity and
// averages their recorded completion percentages.
func (x *PRDIndex) AggregateStatistics() Aggregate {
	agg := Aggregate{
		TotalPRDs:    len(x.PRDs),
		ByStatus:     make(map[PRDStatus]int),
		ByPriority:   make(map[Priority]int),
		ByComplexity: make(map[Complexity]int),
	}
	completion := 0
	for _, p := range x.PRDs {
		agg.ByStatus[p.Status]++
		if p.Priority != "" {
			agg.ByPriority[p.Priority]++
		}
		if p.Complexity != "" {
			agg.ByComplexity[p.Complexity]++
		}
		agg.TotalLinkedTasks += len(p.LinkedTasks)
		agg.TotalFileSize += p.FileSize
		completion += p.TaskStats.CompletionPercentage
	}
	if len(x.PRDs) > 0 {
		agg.AverageCompletion = int(math.Round(float64(completion) / float64(len(x.PRDs))))
	}
	return agg
}

// TaskIndex is the in-memory task collection.
type TaskIndex struct {
	SchemaVersion int            `json:"schemaVersion,omitempty"`
	Tasks         []*Task        `json:"tasks"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewTaskIndex returns an empty task index.
func NewTaskIndex() *TaskIndex {
	return &TaskIndex{SchemaVersion: SchemaVersion, Tasks: []*Task{}}
}

// Find resolves a task or subtask ID. Subtasks are looked up through their
// parent and may store either their local number or the full dotted ID.
func (x *TaskIndex) Find(id TaskID) *Task {
	if parent, ok := id.Parent(); ok {
		p := x.Find(parent)
		if p == nil {
			return nil
		}
		local := id[len(parent)+1:]
		for _, st := range p.Subtasks {
			if st.ID == local || st.ID == id {
				return st
			}
		}
		return nil
	}
	for _, t := range x.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Walk visits every task and subtask depth-first with its full ID.
func (x *TaskIndex) Walk(fn func(fullID TaskID, t *Task)) {
	var visit func(prefix TaskID, tasks []*Task)
	visit = func(prefix TaskID, tasks []*Task) {
		for _, t := range tasks {
			full := t.ID
			if prefix != "" && !t.ID.IsSubtask() {
				full = prefix + "." + t.ID
			}
			fn(full, t)
			visit(full, t.Subtasks)
		}
	}
	visit("", x.Tasks)
}

// IDs returns every top-level task ID in numeric order.
func (x *TaskIndex) IDs() []TaskID {
	ids := make([]TaskID, 0, len(x.Tasks))
	for _, t := range x.Tasks {
		ids = append(ids, t.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Remove deletes a top-level task and reports whether it existed.
func (x *TaskIndex) Remove(id TaskID) bool {
	for i, t := range x.Tasks {
		if t.ID == id {
			x.Tasks = append(x.Tasks[:i], x.Tasks[i+1:]...)
			return true
		}
	}
	return false
}
