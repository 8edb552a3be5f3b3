// Package filesystem implements metastore.Store on the JSON index files of a
// project: the PRD index (prds.json) and the task index (tasks.json).
//
// Indices are validated against embedded JSON Schemas on load and written
// back pretty-printed (2-space indent, trailing newline) through an atomic
// temp-file rename.
package filesystem

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"taskmaster-lite/internal/config"
	"taskmaster-lite/internal/fsutil"
	"taskmaster-lite/internal/logging"
	"taskmaster-lite/internal/metastore"

	"github.com/charmbracelet/log"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFiles embed.FS

var (
	prdSchema  = mustCompileSchema("prds.schema.json")
	taskSchema = mustCompileSchema("tasks.schema.json")
)

func mustCompileSchema(name string) *jsonschema.Schema {
	data, err := schemaFiles.ReadFile("schema/" + name)
	if err != nil {
		panic(fmt.Sprintf("reading embedded schema %s: %v", name, err))
	}
	return jsonschema.MustCompileString("https://taskmaster.local/schema/"+name, string(data))
}

// Store implements metastore.Store over the JSON indices of a layout.
type Store struct {
	fs     fsutil.FS
	layout config.Layout
	logger *log.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report legacy field folding.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides the clock used to stamp index metadata.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store reading and writing the indices named by layout.
func New(fsys fsutil.FS, layout config.Layout, opts ...Option) *Store {
	s := &Store{
		fs:     fsys,
		layout: layout,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init creates the PRD status directories and the tasks directory.
func (s *Store) Init(ctx context.Context) error {
	dirs := []string{s.layout.TasksDir, s.layout.PRDDir}
	for _, status := range metastore.PRDStatuses {
		dirs = append(dirs, s.layout.StatusDir(status))
	}
	for _, dir := range dirs {
		if err := s.fs.MkdirAll(dir); err != nil {
			return &metastore.IOError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	return nil
}

// LoadPRDs reads the PRD index. A missing index loads as empty. Legacy
// linkedTaskIds fields are folded into linkedTasks; the number of folded
// records is reported in the index's Folded field.
func (s *Store) LoadPRDs(ctx context.Context) (*metastore.PRDIndex, error) {
	idx := metastore.NewPRDIndex()
	found, err := s.readIndex(s.layout.PRDIndex, prdSchema, idx)
	if err != nil {
		return nil, err
	}
	if !found {
		return idx, nil
	}
	if idx.PRDs == nil {
		idx.PRDs = []*metastore.PRD{}
	}
	if err := idx.CheckUniqueIDs(); err != nil {
		return nil, &metastore.ParseError{Path: s.layout.PRDIndex, Field: "prds", Err: err}
	}
	idx.Folded = idx.FoldLegacyLinks()
	if idx.Folded > 0 {
		s.logger.Info("folded legacy linkedTaskIds", "path", s.layout.PRDIndex, "records", idx.Folded)
	}
	return idx, nil
}

// LoadTasks reads the task index. A missing index loads as empty.
func (s *Store) LoadTasks(ctx context.Context) (*metastore.TaskIndex, error) {
	idx := metastore.NewTaskIndex()
	found, err := s.readIndex(s.layout.TaskIndex, taskSchema, idx)
	if err != nil {
		return nil, err
	}
	if !found {
		return idx, nil
	}
	if idx.Tasks == nil {
		idx.Tasks = []*metastore.Task{}
	}
	return idx, nil
}

// SavePRDs refreshes the index metadata and replaces prds.json.
func (s *Store) SavePRDs(ctx context.Context, idx *metastore.PRDIndex) error {
	idx.Touch(s.now().UTC())
	return s.writeIndex(s.layout.PRDIndex, idx)
}

// SaveTasks replaces tasks.json.
func (s *Store) SaveTasks(ctx context.Context, idx *metastore.TaskIndex) error {
	if idx.SchemaVersion == 0 {
		idx.SchemaVersion = metastore.SchemaVersion
	}
	if idx.Tasks == nil {
		idx.Tasks = []*metastore.Task{}
	}
	return s.writeIndex(s.layout.TaskIndex, idx)
}

// readIndex decodes the index at rel into v. It reports false when the file
// does not exist.
func (s *Store) readIndex(rel string, schema *jsonschema.Schema, v any) (bool, error) {
	data, err := s.fs.ReadFile(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &metastore.IOError{Op: "read", Path: rel, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, &metastore.ParseError{Path: rel, Err: err}
	}
	if err := schema.Validate(doc); err != nil {
		field, cause := firstSchemaError(err)
		return false, &metastore.ParseError{Path: rel, Field: field, Err: cause}
	}
	if err := json.Unmarshal(data, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return false, &metastore.ParseError{Path: rel, Field: typeErr.Field, Err: err}
		}
		return false, &metastore.ParseError{Path: rel, Err: err}
	}
	return true, nil
}

func (s *Store) writeIndex(rel string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return &metastore.IOError{Op: "encode", Path: rel, Err: err}
	}
	if err := s.fs.WriteFile(rel, buf.Bytes()); err != nil {
		return &metastore.IOError{Op: "write", Path: rel, Err: err}
	}
	return nil
}

// firstSchemaError descends to the first leaf cause of a validation error
// and returns its instance location as a dotted path.
func firstSchemaError(err error) (string, error) {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return "", err
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return jsonPointerToPath(ve.InstanceLocation), fmt.Errorf("%s: %w", ve.Message, metastore.ErrInvalid)
}

// jsonPointerToPath turns "/prds/3/status" into "prds[3].status".
func jsonPointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "#")
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	var b strings.Builder
	for _, part := range strings.Split(ptr, "/") {
		part = strings.ReplaceAll(part, "~1", "/")
		part = strings.ReplaceAll(part, "~0", "~")
		if part == "" {
			continue
		}
		if n, err := strconv.Atoi(part); err == nil {
			fmt.Fprintf(&b, "[%d]", n)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}

// Compile-time check that Store implements metastore.Store.
var _ metastore.Store = (*Store)(nil)
