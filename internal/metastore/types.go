// Package metastore defines the PRD and task records and the interface for
// loading and persisting their indices. Storage engines (JSON files,
// SQLite) implement Store.
package metastore

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the index format version written by this package.
const SchemaVersion = 1

// PRDStatus is the lifecycle status of a PRD. Each status names the
// directory its source file lives in.
type PRDStatus string

const (
	PRDPending    PRDStatus = "pending"
	PRDInProgress PRDStatus = "in-progress"
	PRDDone       PRDStatus = "done"
	PRDArchived   PRDStatus = "archived"
)

// PRDStatuses lists every PRD status in lifecycle order.
var PRDStatuses = []PRDStatus{PRDPending, PRDInProgress, PRDDone, PRDArchived}

// Valid reports whether s is a known PRD status.
func (s PRDStatus) Valid() bool {
	for _, v := range PRDStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// TaskStatus is the status of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in-progress"
	TaskDone       TaskStatus = "done"
	TaskReview     TaskStatus = "review"
	TaskBlocked    TaskStatus = "blocked"
	TaskDeferred   TaskStatus = "deferred"
	TaskCancelled  TaskStatus = "cancelled"
)

// TaskStatuses lists every task status.
var TaskStatuses = []TaskStatus{
	TaskPending, TaskInProgress, TaskDone, TaskReview,
	TaskBlocked, TaskDeferred, TaskCancelled,
}

// Priority is shared by PRDs and tasks. Urgent only exists in the
// relational schema but is accepted everywhere.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Complexity is the estimated complexity of a PRD.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Valid reports whether c is a known complexity.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// AnalysisStatus tracks whether a PRD has been analyzed.
type AnalysisStatus string

const (
	AnalysisNotAnalyzed AnalysisStatus = "not-analyzed"
	AnalysisAnalyzing   AnalysisStatus = "analyzing"
	AnalysisAnalyzed    AnalysisStatus = "analyzed"
)

// TasksStatus tracks whether tasks have been generated from a PRD.
type TasksStatus string

const (
	TasksNone       TasksStatus = "no-tasks"
	TasksGenerating TasksStatus = "generating"
	TasksGenerated  TasksStatus = "generated"
)

// TaskStats is the snapshot of linked task states stored on a PRD. It is
// always recomputed from the task index, never edited by hand.
type TaskStats struct {
	TotalTasks           int `json:"totalTasks"`
	CompletedTasks       int `json:"completedTasks"`
	PendingTasks         int `json:"pendingTasks"`
	InProgressTasks      int `json:"inProgressTasks"`
	BlockedTasks         int `json:"blockedTasks"`
	CompletionPercentage int `json:"completionPercentage"`
}

// PRD is a requirements document tracked in the PRD index.
type PRD struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	FileName     string     `json:"fileName"`
	FilePath     string     `json:"filePath"`
	FileHash     string     `json:"fileHash"`
	FileSize     int64      `json:"fileSize"`
	Status       PRDStatus  `json:"status"`
	Complexity   Complexity `json:"complexity,omitempty"`
	Priority     Priority   `json:"priority,omitempty"`
	Description  string     `json:"description,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	CreatedDate  time.Time  `json:"createdDate"`
	LastModified time.Time  `json:"lastModified"`
	TaskStats    TaskStats  `json:"taskStats"`
	LinkedTasks  []TaskID   `json:"linkedTasks"`

	// LegacyLinkedTaskIDs holds the old linkedTaskIds field. It is folded
	// into LinkedTasks on load and never written back.
	LegacyLinkedTaskIDs []TaskID `json:"linkedTaskIds,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`

	AnalysisStatus  AnalysisStatus  `json:"analysisStatus,omitempty"`
	TasksStatus     TasksStatus     `json:"tasksStatus,omitempty"`
	AnalysisData    json.RawMessage `json:"analysisData,omitempty"`
	AnalyzedAt      *time.Time      `json:"analyzedAt,omitempty"`
	EstimatedEffort string          `json:"estimatedEffort,omitempty"`
}

// HasLinkedTask reports whether id is in the PRD's linked task list.
func (p *PRD) HasLinkedTask(id TaskID) bool {
	return ContainsTaskID(p.LinkedTasks, id)
}

// FoldLegacyLinks moves the legacy linkedTaskIds list into LinkedTasks.
// The non-empty list wins; when both are set LinkedTasks is kept. It
// reports whether the record carried the legacy field.
func (p *PRD) FoldLegacyLinks() bool {
	if p.LegacyLinkedTaskIDs == nil {
		return false
	}
	if len(p.LinkedTasks) == 0 {
		p.LinkedTasks = p.LegacyLinkedTaskIDs
	}
	p.LegacyLinkedTaskIDs = nil
	return true
}

// PRDSource is the back-reference from a task to the PRD it was parsed from.
type PRDSource struct {
	FilePath   string     `json:"filePath,omitempty"`
	FileName   string     `json:"fileName"`
	ParsedDate *time.Time `json:"parsedDate,omitempty"`
	FileHash   string     `json:"fileHash,omitempty"`
	FileSize   int64      `json:"fileSize,omitempty"`
	PRDID      string     `json:"prdId,omitempty"`
}

// Task is a unit of work in the task index.
type Task struct {
	ID              TaskID     `json:"id"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Details         string     `json:"details,omitempty"`
	TestStrategy    string     `json:"testStrategy,omitempty"`
	Status          TaskStatus `json:"status"`
	Priority        Priority   `json:"priority,omitempty"`
	Dependencies    []TaskID   `json:"dependencies,omitempty"`
	PRDSource       *PRDSource `json:"prdSource,omitempty"`
	Subtasks        []*Task    `json:"subtasks,omitempty"`
	ComplexityScore *float64   `json:"complexityScore,omitempty"`
}
