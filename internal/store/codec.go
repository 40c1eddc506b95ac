package store

import (
	"encoding/json"
	"fmt"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

// TaskColumns holds the JSON-encoded columns of a task row.
type TaskColumns struct {
	Input  []byte
	Output []byte // nil when the task has no output
	Errors []byte
}

// EncodeTask marshals the structured fields of a task for storage.
func EncodeTask(t *domain.WorkflowTask) (TaskColumns, error) {
	var cols TaskColumns
	var err error
	if cols.Input, err = json.Marshal(t.Input); err != nil {
		return cols, fmt.Errorf("encode input of task %s: %w", t.ID, err)
	}
	if t.Output != nil {
		if cols.Output, err = json.Marshal(t.Output); err != nil {
			return cols, fmt.Errorf("encode output of task %s: %w", t.ID, err)
		}
	}
	errs := t.Errors
	if errs == nil {
		errs = []domain.TaskError{}
	}
	if cols.Errors, err = json.Marshal(errs); err != nil {
		return cols, fmt.Errorf("encode errors of task %s: %w", t.ID, err)
	}
	return cols, nil
}

// DecodeTask fills the structured fields of t from stored columns.
func DecodeTask(t *domain.WorkflowTask, cols TaskColumns) error {
	if len(cols.Input) > 0 {
		if err := json.Unmarshal(cols.Input, &t.Input); err != nil {
			return fmt.Errorf("decode input of task %s: %w", t.ID, err)
		}
	}
	t.Output = nil
	if len(cols.Output) > 0 && string(cols.Output) != "null" {
		var out domain.TaskOutput
		if err := json.Unmarshal(cols.Output, &out); err != nil {
			return fmt.Errorf("decode output of task %s: %w", t.ID, err)
		}
		t.Output = &out
	}
	t.Errors = nil
	if len(cols.Errors) > 0 {
		if err := json.Unmarshal(cols.Errors, &t.Errors); err != nil {
			return fmt.Errorf("decode errors of task %s: %w", t.ID, err)
		}
		if len(t.Errors) == 0 {
			t.Errors = nil
		}
	}
	return nil
}

// EncodeList marshals a string slice as a JSON array, never null.
func EncodeList(v []string) []byte {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return b
}

// DecodeList is the inverse of EncodeList.
func DecodeList(b []byte) ([]string, error) {
	if len(b) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
