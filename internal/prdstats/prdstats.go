// Package prdstats recomputes PRD task statistics from the task index and,
// when asked to, derives PRD status from them.
//
// Computing statistics never changes a PRD's status. Status changes only
// happen through Sync, which callers must invoke explicitly.
package prdstats

import (
	"math"

	"taskmaster-lite/internal/metastore"
)

// Compute counts the states of the tasks p links to. Done and cancelled
// tasks count as completed, review counts as in progress and deferred as
// pending. Links that do not resolve are not counted. The percentage is
// 0 when nothing is linked.
func Compute(p *metastore.PRD, tasks *metastore.TaskIndex) metastore.TaskStats {
	var s metastore.TaskStats
	seen := make(map[metastore.TaskID]bool, len(p.LinkedTasks))
	for _, id := range p.LinkedTasks {
		if seen[id] {
			continue
		}
		seen[id] = true
		t := tasks.Find(id)
		if t == nil {
			continue
		}
		s.TotalTasks++
		switch t.Status {
		case metastore.TaskDone, metastore.TaskCancelled:
			s.CompletedTasks++
		case metastore.TaskInProgress, metastore.TaskReview:
			s.InProgressTasks++
		case metastore.TaskBlocked:
			s.BlockedTasks++
		default:
			s.PendingTasks++
		}
	}
	if s.TotalTasks > 0 {
		s.CompletionPercentage = int(math.Round(float64(s.CompletedTasks) * 100 / float64(s.TotalTasks)))
	}
	return s
}

// DeriveStatus maps statistics onto a PRD status: every task completed is
// done, any task started or completed is in progress, otherwise pending.
// It has no opinion (ok is false) when no tasks are linked.
func DeriveStatus(s metastore.TaskStats) (status metastore.PRDStatus, ok bool) {
	switch {
	case s.TotalTasks == 0:
		return "", false
	case s.CompletedTasks == s.TotalTasks:
		return metastore.PRDDone, true
	case s.InProgressTasks > 0 || s.CompletedTasks > 0:
		return metastore.PRDInProgress, true
	default:
		return metastore.PRDPending, true
	}
}

// Refresh recomputes p's statistics in place and reports whether they
// changed.
func Refresh(p *metastore.PRD, tasks *metastore.TaskIndex) bool {
	next := Compute(p, tasks)
	if next == p.TaskStats {
		return false
	}
	p.TaskStats = next
	return true
}
