package metastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TaskID identifies a task. Top-level tasks have integer IDs ("7"); subtasks
// use dotted parent.sub numbering ("7.2"). In JSON an ID may appear as a
// number or a string; integer IDs are always written back as numbers.
type TaskID string

// IntTaskID returns the TaskID for an integer task number.
func IntTaskID(n int) TaskID {
	return TaskID(strconv.Itoa(n))
}

// String returns the canonical string form.
func (id TaskID) String() string {
	return string(id)
}

// IsSubtask reports whether id uses parent.sub numbering.
func (id TaskID) IsSubtask() bool {
	return strings.Contains(string(id), ".")
}

// Parent returns the parent ID of a subtask.
func (id TaskID) Parent() (TaskID, bool) {
	i := strings.LastIndex(string(id), ".")
	if i < 0 {
		return "", false
	}
	return id[:i], true
}

// Int returns the numeric value of a top-level ID.
func (id TaskID) Int() (int, bool) {
	n, err := strconv.Atoi(string(id))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Less orders IDs numerically segment by segment, falling back to string
// comparison for non-numeric segments.
func (id TaskID) Less(other TaskID) bool {
	a := strings.Split(string(id), ".")
	b := strings.Split(string(other), ".")
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		na, errA := strconv.Atoi(a[i])
		nb, errB := strconv.Atoi(b[i])
		if errA == nil && errB == nil {
			return na < nb
		}
		return a[i] < b[i]
	}
	return len(a) < len(b)
}

// MarshalJSON writes integer IDs as JSON numbers and dotted IDs as strings.
func (id TaskID) MarshalJSON() ([]byte, error) {
	if n, ok := id.Int(); ok {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *TaskID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = TaskID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("task id must be a number or string: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = TaskID(strconv.FormatInt(i, 10))
		return nil
	}
	// Legacy files sometimes encode subtask IDs as floats (7.2).
	*id = TaskID(n.String())
	return nil
}

// ContainsTaskID reports whether ids contains id.
func ContainsTaskID(ids []TaskID, id TaskID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
