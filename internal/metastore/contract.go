package metastore

import (
	"context"
	"testing"
	"time"
)

// RunContractTests runs the contract suite against a Store implementation.
// Each storage engine calls this with its own factory so that the JSON and
// relational backends stay semantically equivalent.
func RunContractTests(t *testing.T, factory func() Store) {
	t.Run("EmptyLoad", func(t *testing.T) { testEmptyLoad(t, factory()) })
	t.Run("PRDRoundTrip", func(t *testing.T) { testPRDRoundTrip(t, factory()) })
	t.Run("TaskRoundTrip", func(t *testing.T) { testTaskRoundTrip(t, factory()) })
	t.Run("SaveReplaces", func(t *testing.T) { testSaveReplaces(t, factory()) })
}

func testEmptyLoad(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	prds, err := s.LoadPRDs(ctx)
	if err != nil {
		t.Fatalf("LoadPRDs failed: %v", err)
	}
	if len(prds.PRDs) != 0 {
		t.Errorf("expected no PRDs, got %d", len(prds.PRDs))
	}

	tasks, err := s.LoadTasks(ctx)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(tasks.Tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks.Tasks))
	}
}

func testPRDRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	idx := NewPRDIndex()
	idx.PRDs = append(idx.PRDs, &PRD{
		ID:           "prd-001",
		Title:        "Checkout flow",
		FileName:     "checkout.md",
		FilePath:     ".taskmaster/prd/in-progress/checkout.md",
		FileHash:     "abc123",
		FileSize:     42,
		Status:       PRDInProgress,
		Complexity:   ComplexityHigh,
		Priority:     PriorityUrgent,
		Description:  "Payments",
		Tags:         []string{"payments", "web"},
		CreatedDate:  now,
		LastModified: now,
		TaskStats: TaskStats{
			TotalTasks: 3, CompletedTasks: 1, PendingTasks: 1, InProgressTasks: 1,
			CompletionPercentage: 33,
		},
		LinkedTasks:    []TaskID{"1", "2", "2.1"},
		Metadata:       map[string]any{"owner": "web-team"},
		AnalysisStatus: AnalysisAnalyzed,
		TasksStatus:    TasksGenerated,
	})

	if err := s.SavePRDs(ctx, idx); err != nil {
		t.Fatalf("SavePRDs failed: %v", err)
	}

	got, err := s.LoadPRDs(ctx)
	if err != nil {
		t.Fatalf("LoadPRDs failed: %v", err)
	}
	if len(got.PRDs) != 1 {
		t.Fatalf("expected 1 PRD, got %d", len(got.PRDs))
	}
	p := got.FindByID("prd-001")
	if p == nil {
		t.Fatal("prd-001 not found after round trip")
	}
	if p.Title != "Checkout flow" || p.FileName != "checkout.md" {
		t.Errorf("title/fileName mismatch: %q %q", p.Title, p.FileName)
	}
	if p.FilePath != ".taskmaster/prd/in-progress/checkout.md" {
		t.Errorf("FilePath = %q", p.FilePath)
	}
	if p.FileHash != "abc123" || p.FileSize != 42 {
		t.Errorf("hash/size mismatch: %q %d", p.FileHash, p.FileSize)
	}
	if p.Status != PRDInProgress || p.Priority != PriorityUrgent || p.Complexity != ComplexityHigh {
		t.Errorf("status/priority/complexity mismatch: %s %s %s", p.Status, p.Priority, p.Complexity)
	}
	if len(p.LinkedTasks) != 3 || p.LinkedTasks[2] != "2.1" {
		t.Errorf("LinkedTasks = %v", p.LinkedTasks)
	}
	if p.TaskStats.CompletionPercentage != 33 || p.TaskStats.TotalTasks != 3 {
		t.Errorf("TaskStats = %+v", p.TaskStats)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "payments" {
		t.Errorf("Tags = %v", p.Tags)
	}
	if p.Metadata["owner"] != "web-team" {
		t.Errorf("Metadata = %v", p.Metadata)
	}
	if !p.CreatedDate.Equal(now) {
		t.Errorf("CreatedDate = %v, want %v", p.CreatedDate, now)
	}
	if p.AnalysisStatus != AnalysisAnalyzed || p.TasksStatus != TasksGenerated {
		t.Errorf("analysis fields = %s %s", p.AnalysisStatus, p.TasksStatus)
	}
}

func testTaskRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	score := 7.0
	idx := NewTaskIndex()
	idx.Tasks = append(idx.Tasks,
		&Task{ID: "1", Title: "Schema", Status: TaskDone, Priority: PriorityHigh},
		&Task{
			ID:              "2",
			Title:           "API",
			Description:     "Build the API",
			Details:         "REST endpoints",
			TestStrategy:    "integration tests",
			Status:          TaskInProgress,
			Priority:        PriorityMedium,
			Dependencies:    []TaskID{"1"},
			PRDSource:       &PRDSource{FileName: "checkout.md", PRDID: "prd-001"},
			ComplexityScore: &score,
			Subtasks: []*Task{
				{ID: "1", Title: "Handlers", Status: TaskPending},
			},
		},
	)

	if err := s.SaveTasks(ctx, idx); err != nil {
		t.Fatalf("SaveTasks failed: %v", err)
	}

	got, err := s.LoadTasks(ctx)
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(got.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got.Tasks))
	}
	api := got.Find("2")
	if api == nil {
		t.Fatal("task 2 not found")
	}
	if api.Details != "REST endpoints" || api.TestStrategy != "integration tests" {
		t.Errorf("details/testStrategy mismatch: %q %q", api.Details, api.TestStrategy)
	}
	if len(api.Dependencies) != 1 || api.Dependencies[0] != "1" {
		t.Errorf("Dependencies = %v", api.Dependencies)
	}
	if api.PRDSource == nil || api.PRDSource.FileName != "checkout.md" || api.PRDSource.PRDID != "prd-001" {
		t.Errorf("PRDSource = %+v", api.PRDSource)
	}
	if api.ComplexityScore == nil || *api.ComplexityScore != 7 {
		t.Errorf("ComplexityScore = %v", api.ComplexityScore)
	}
	if sub := got.Find("2.1"); sub == nil || sub.Title != "Handlers" {
		t.Errorf("subtask 2.1 = %+v", sub)
	}
}

func testSaveReplaces(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	idx := NewPRDIndex()
	idx.PRDs = append(idx.PRDs,
		&PRD{ID: "prd-a", FileName: "a.md", Status: PRDPending},
		&PRD{ID: "prd-b", FileName: "b.md", Status: PRDDone},
	)
	if err := s.SavePRDs(ctx, idx); err != nil {
		t.Fatalf("SavePRDs failed: %v", err)
	}

	idx.Remove("prd-a")
	if err := s.SavePRDs(ctx, idx); err != nil {
		t.Fatalf("second SavePRDs failed: %v", err)
	}

	got, err := s.LoadPRDs(ctx)
	if err != nil {
		t.Fatalf("LoadPRDs failed: %v", err)
	}
	if len(got.PRDs) != 1 || got.PRDs[0].ID != "prd-b" {
		t.Errorf("expected only prd-b, got %+v", got.PRDs)
	}
}
