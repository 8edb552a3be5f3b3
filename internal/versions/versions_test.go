package versions

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/kvstorage/filesystem"
	"taskmaster-lite/internal/metastore"
)

func newTracker(t *testing.T) (*Tracker, fsutil.FS) {
	t.Helper()
	fsys := fsutil.New(t.TempDir())
	kv, err := filesystem.New(fsys, ".taskmaster", TableName)
	if err != nil {
		t.Fatal(err)
	}
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := New(kv, WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	if err := tr.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return tr, fsys
}

func samplePRD() *metastore.PRD {
	return &metastore.PRD{
		ID: "prd-1", Title: "Auth", FileName: "auth.md",
		FilePath: ".taskmaster/prd/pending/auth.md", FileHash: "h1", FileSize: 10,
		Status: metastore.PRDPending, Priority: metastore.PriorityHigh,
		LinkedTasks: []metastore.TaskID{"1"},
	}
}

func TestTrack(t *testing.T) {
	tr, fsys := newTracker(t)
	ctx := context.Background()
	p := samplePRD()

	v, err := tr.Track(ctx, p, ChangeContent, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if v == nil || v.Version != 1 || v.ChangeType != ChangeCreated {
		t.Fatalf("first version = %+v, want version 1 created", v)
	}
	if v.Changes.SizeDelta != 10 || v.Changes.HashBefore != "" || v.Changes.HashAfter != "h1" {
		t.Errorf("first version changes = %+v", v.Changes)
	}
	if !fsys.Exists(".taskmaster/versions/prd-1.json") {
		t.Error("history document not written")
	}

	v, err = tr.Track(ctx, p, ChangeContent, "alice")
	if err != nil || v != nil {
		t.Fatalf("unchanged PRD recorded %+v, %v", v, err)
	}

	p.FileHash, p.FileSize = "h2", 12
	v, err = tr.Track(ctx, p, ChangeContent, "bob")
	if err != nil || v == nil || v.Version != 2 || v.Author != "bob" {
		t.Fatalf("content change = %+v, %v", v, err)
	}
	want := Changes{PreviousSize: 10, NewSize: 12, SizeDelta: 2, HashBefore: "h1", HashAfter: "h2"}
	if v.Changes != want {
		t.Errorf("changes = %+v, want %+v", v.Changes, want)
	}

	p.Status = metastore.PRDInProgress
	v, err = tr.Track(ctx, p, ChangeStatus, "alice")
	if err != nil || v == nil || v.Version != 3 {
		t.Fatalf("status change = %+v, %v", v, err)
	}
}

func TestTrackRecordsMove(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	p := samplePRD()
	if _, err := tr.Track(ctx, p, ChangeCreated, "alice"); err != nil {
		t.Fatal(err)
	}

	p.FilePath = ".taskmaster/prd/done/auth.md"
	v, err := tr.Track(ctx, p, ChangeMoved, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if v == nil || v.ChangeType != ChangeMoved || v.Version != 2 {
		t.Fatalf("move = %+v, want version 2 moved", v)
	}
	if v.Changes.PathBefore != ".taskmaster/prd/pending/auth.md" || v.Changes.SizeDelta != 0 {
		t.Errorf("changes = %+v", v.Changes)
	}

	res, err := tr.History(ctx, "prd-1", Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if res.CurrentVersion != 2 || res.Total != 2 {
		t.Errorf("history = current %d, total %d", res.CurrentVersion, res.Total)
	}
}

func TestHistoryFilter(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	p := samplePRD()
	for i, change := range []ChangeType{ChangeCreated, ChangeContent, ChangeRestamp, ChangeContent} {
		p.FileHash = string(rune('a' + i))
		author := "alice"
		if i%2 == 1 {
			author = "bob"
		}
		if _, err := tr.Track(ctx, p, change, author); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"all newest first", Filter{}, []int{4, 3, 2, 1}},
		{"limit", Filter{Limit: 2}, []int{4, 3}},
		{"change type", Filter{ChangeType: ChangeContent}, []int{4, 2}},
		{"author", Filter{Author: "alice"}, []int{3, 1}},
		{"combined", Filter{Author: "bob", Limit: 1}, []int{4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tr.History(ctx, "prd-1", tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if res.Total != 4 {
				t.Errorf("Total = %d", res.Total)
			}
			if len(res.Versions) != len(tt.want) {
				t.Fatalf("got %d versions, want %v", len(res.Versions), tt.want)
			}
			for i, n := range tt.want {
				if res.Versions[i].Version != n {
					t.Errorf("versions[%d] = %d, want %d", i, res.Versions[i].Version, n)
				}
			}
		})
	}
}

func TestHistoryUnknownPRD(t *testing.T) {
	tr, _ := newTracker(t)
	res, err := tr.History(context.Background(), "prd-none", Filter{})
	if err != nil || res.Total != 0 || len(res.Versions) != 0 {
		t.Errorf("History = %+v, %v", res, err)
	}
}

func TestCompare(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	p := samplePRD()
	if _, err := tr.Track(ctx, p, ChangeCreated, ""); err != nil {
		t.Fatal(err)
	}
	p.Status = metastore.PRDDone
	p.FileHash, p.FileSize = "h2", 20
	p.LinkedTasks = append(p.LinkedTasks, "2")
	if _, err := tr.Track(ctx, p, ChangeStatus, ""); err != nil {
		t.Fatal(err)
	}

	c, err := tr.Compare(ctx, "prd-1", 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string][2]string{
		"status":          {"pending", "done"},
		"linkedTaskCount": {"1", "2"},
		"fileSize":        {"10", "20"},
		"fileHash":        {"h1", "h2"},
	}
	if !c.HasChanges || len(c.Changes) != len(want) {
		t.Fatalf("changes = %+v", c.Changes)
	}
	for _, ch := range c.Changes {
		w, ok := want[ch.Field]
		if !ok || ch.From != w[0] || ch.To != w[1] {
			t.Errorf("change %+v, want %v", ch, w)
		}
	}

	same, err := tr.Compare(ctx, "prd-1", 2, 2)
	if err != nil || !same.Identical() {
		t.Errorf("self comparison = %+v, %v", same, err)
	}

	_, err = tr.Compare(ctx, "prd-1", 1, 9)
	if !errors.Is(err, ErrVersionNotFound) || !errors.Is(err, metastore.ErrNotFound) {
		t.Errorf("missing version error = %v", err)
	}
}

func TestTrackAllAndForget(t *testing.T) {
	tr, _ := newTracker(t)
	ctx := context.Background()
	idx := metastore.NewPRDIndex()
	a, b := samplePRD(), samplePRD()
	b.ID = "prd-2"
	idx.PRDs = []*metastore.PRD{a, b}

	items, err := tr.TrackAll(ctx, idx, ChangeRestamp, "")
	if err != nil {
		t.Fatal(err)
	}
	if tally := metastore.TallyOf(items); tally.Succeeded != 2 {
		t.Fatalf("first scan = %+v", tally)
	}
	a.FileHash = "changed"
	items, err = tr.TrackAll(ctx, idx, ChangeRestamp, "")
	if err != nil {
		t.Fatal(err)
	}
	if tally := metastore.TallyOf(items); tally.Succeeded != 1 || tally.Skipped != 1 {
		t.Fatalf("second scan = %+v", tally)
	}

	if err := tr.Forget(ctx, "prd-1"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Forget(ctx, "prd-1"); err != nil {
		t.Errorf("forgetting twice: %v", err)
	}
	h, err := tr.Load(ctx, "prd-1")
	if err != nil || len(h.Versions) != 0 {
		t.Errorf("history after Forget = %+v, %v", h, err)
	}
}
