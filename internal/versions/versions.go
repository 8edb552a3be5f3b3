// Package versions keeps an append-only history of PRD snapshots. Each
// PRD's history is one JSON document in a key-value table, keyed by PRD id.
package versions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskmaster-lite/internal/kvstorage"
	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/metastore"

	"github.com/charmbracelet/log"
)

// TableName is the key-value table histories are stored in.
const TableName = "versions"

// ChangeType labels why a version was recorded.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeContent ChangeType = "content"
	ChangeStatus  ChangeType = "status"
	ChangeRestamp ChangeType = "restamp"
	ChangeMoved   ChangeType = "moved"
)

// ErrVersionNotFound is returned by Compare for an unknown version number.
var ErrVersionNotFound = fmt.Errorf("version %w", metastore.ErrNotFound)

// Version is one snapshot of a PRD.
type Version struct {
	Version         int                  `json:"version"`
	Timestamp       time.Time            `json:"timestamp"`
	ChangeType      ChangeType           `json:"changeType"`
	Author          string               `json:"author,omitempty"`
	Title           string               `json:"title,omitempty"`
	FilePath        string               `json:"filePath,omitempty"`
	FileHash        string               `json:"fileHash"`
	FileSize        int64                `json:"fileSize"`
	Status          metastore.PRDStatus  `json:"status"`
	Priority        metastore.Priority   `json:"priority,omitempty"`
	Complexity      metastore.Complexity `json:"complexity,omitempty"`
	LinkedTaskCount int                  `json:"linkedTaskCount"`
	Changes         Changes              `json:"changes"`
}

// Changes describes the file change a version records relative to the
// version before it. The first version compares against an empty file.
type Changes struct {
	PreviousSize int64  `json:"previousSize"`
	NewSize      int64  `json:"newSize"`
	SizeDelta    int64  `json:"sizeDelta"`
	HashBefore   string `json:"hashBefore,omitempty"`
	HashAfter    string `json:"hashAfter"`
	PathBefore   string `json:"pathBefore,omitempty"`
}

// History is the stored document for one PRD. Versions are kept oldest
// first.
type History struct {
	PRDID    string    `json:"prdId"`
	Versions []Version `json:"versions"`
}

// Latest returns the newest version, or nil.
func (h *History) Latest() *Version {
	if len(h.Versions) == 0 {
		return nil
	}
	return &h.Versions[len(h.Versions)-1]
}

// Find returns the version with number n, or nil.
func (h *History) Find(n int) *Version {
	for i := range h.Versions {
		if h.Versions[i].Version == n {
			return &h.Versions[i]
		}
	}
	return nil
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger new versions are reported to.
func WithLogger(l *log.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithClock overrides the clock used to timestamp versions.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker records and queries PRD version histories.
type Tracker struct {
	kv     kvstorage.KVStore
	logger *log.Logger
	now    func() time.Time
}

// New returns a Tracker over kv.
func New(kv kvstorage.KVStore, opts ...Option) *Tracker {
	t := &Tracker{kv: kv, logger: logging.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Init prepares the underlying table.
func (t *Tracker) Init(ctx context.Context) error {
	return t.kv.Init(ctx)
}

// Load returns the stored history for id. A PRD without history gets an
// empty one.
func (t *Tracker) Load(ctx context.Context, id string) (*History, error) {
	data, err := t.kv.Get(ctx, id)
	if errors.Is(err, kvstorage.ErrKeyNotFound) {
		return &History{PRDID: id, Versions: []Version{}}, nil
	}
	if err != nil {
		return nil, &metastore.IOError{Op: "read", Path: TableName + "/" + id, Err: err}
	}
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, &metastore.ParseError{Path: TableName + "/" + id, Err: err}
	}
	if h.Versions == nil {
		h.Versions = []Version{}
	}
	return &h, nil
}

func (t *Tracker) save(ctx context.Context, h *History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return err
	}
	if err := t.kv.Set(ctx, h.PRDID, append(data, '\n'), kvstorage.SetOptions{}); err != nil {
		return &metastore.IOError{Op: "write", Path: TableName + "/" + h.PRDID, Err: err}
	}
	return nil
}

// Track appends a snapshot of p when its file hash, status or file path
// differs from the latest recorded version. The first version of a PRD is always
// recorded as created, whatever change type is passed. It returns the new
// version, or nil when nothing changed.
func (t *Tracker) Track(ctx context.Context, p *metastore.PRD, change ChangeType, author string) (*Version, error) {
	h, err := t.Load(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	latest := h.Latest()
	if latest != nil && latest.FileHash == p.FileHash && latest.Status == p.Status && latest.FilePath == p.FilePath {
		return nil, nil
	}
	if latest == nil {
		change = ChangeCreated
	}
	v := snapshot(p)
	v.Version = 1
	v.Changes = Changes{NewSize: p.FileSize, SizeDelta: p.FileSize, HashAfter: p.FileHash}
	if latest != nil {
		v.Version = latest.Version + 1
		v.Changes.PreviousSize = latest.FileSize
		v.Changes.SizeDelta = p.FileSize - latest.FileSize
		v.Changes.HashBefore = latest.FileHash
		if latest.FilePath != p.FilePath {
			v.Changes.PathBefore = latest.FilePath
		}
	}
	v.Timestamp = t.now().UTC()
	v.ChangeType = change
	v.Author = author
	h.Versions = append(h.Versions, v)
	if err := t.save(ctx, h); err != nil {
		return nil, err
	}
	t.logger.Info("recorded prd version", "prd", p.ID, "version", v.Version, "change", change)
	return &v, nil
}

// TrackAll runs Track over every PRD in idx. Failures are collected per
// PRD and do not stop the scan; cancellation is checked between PRDs.
func (t *Tracker) TrackAll(ctx context.Context, idx *metastore.PRDIndex, change ChangeType, author string) ([]metastore.ItemResult, error) {
	items := make([]metastore.ItemResult, 0, len(idx.PRDs))
	for _, p := range idx.PRDs {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		item := metastore.ItemResult{ID: p.ID, Kind: "prd"}
		v, err := t.Track(ctx, p, change, author)
		switch {
		case err != nil:
			t.logger.Warn("version tracking failed", "prd", p.ID, "err", err)
			item.Outcome = metastore.OutcomeFailed
			item.Message = err.Error()
			item.Err = err
		case v == nil:
			item.Outcome = metastore.OutcomeSkipped
			item.Message = "unchanged"
		default:
			item.Outcome = metastore.OutcomeApplied
			item.Message = fmt.Sprintf("version %d (%s)", v.Version, v.ChangeType)
		}
		items = append(items, item)
	}
	return items, nil
}

// Forget deletes the history of id. A PRD without history is not an error.
func (t *Tracker) Forget(ctx context.Context, id string) error {
	err := t.kv.Delete(ctx, id)
	if err != nil && !errors.Is(err, kvstorage.ErrKeyNotFound) {
		return &metastore.IOError{Op: "delete", Path: TableName + "/" + id, Err: err}
	}
	return nil
}

func snapshot(p *metastore.PRD) Version {
	return Version{
		Title:           p.Title,
		FilePath:        p.FilePath,
		FileHash:        p.FileHash,
		FileSize:        p.FileSize,
		Status:          p.Status,
		Priority:        p.Priority,
		Complexity:      p.Complexity,
		LinkedTaskCount: len(p.LinkedTasks),
	}
}
