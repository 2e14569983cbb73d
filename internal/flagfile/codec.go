package flagfile

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/RaneyMD/cornerstone-archive/internal/taskid"
)

// SupervisorHandlers is the fixed registry of supervisor-control handler
// names, validated against at flag-creation time.
var SupervisorHandlers = map[string]bool{
	"pause_watcher":    true,
	"resume_watcher":   true,
	"restart_watcher":  true,
	"update_code":      true,
	"update_code_deps": true,
	"rollback_code":    true,
	"diagnostics":      true,
	"verify_db":        true,
}

// JobHandlers is the fixed registry of job-flag handler names.
var JobHandlers = map[string]bool{
	"acquire_source": true,
}

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// ValidateLabel accepts an empty label; otherwise enforces length ≤ 100
// and the `[A-Za-z0-9 _-]+` charset.
func ValidateLabel(label string) error {
	if label == "" {
		return nil
	}
	if len(label) > 100 {
		return fmt.Errorf("flagfile: label exceeds 100 characters")
	}
	if !labelPattern.MatchString(label) {
		return fmt.Errorf("flagfile: label %q contains invalid characters", label)
	}
	return nil
}

// Flag is the JSON payload written once, atomically, and never mutated.
type Flag struct {
	TaskID         string         `json:"task_id"`
	Handler        string         `json:"handler"`
	WorkerID       string         `json:"worker_id,omitempty"`
	Label          string         `json:"label,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
	CreatedAt      string         `json:"created_at"`
	MaxRetries     *int           `json:"max_retries,omitempty"`
	TimeoutSeconds *int           `json:"timeout_seconds,omitempty"`
}

// EncodeFlag serializes a Flag to JSON bytes.
func EncodeFlag(f Flag) ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFlag parses flag JSON bytes.
func DecodeFlag(data []byte) (Flag, error) {
	var f Flag
	if err := json.Unmarshal(data, &f); err != nil {
		return Flag{}, fmt.Errorf("flagfile: decode flag: %w", err)
	}
	return f, nil
}

// Result is the JSON payload written to an outbox after execution.
type Result struct {
	TaskID      string         `json:"task_id"`
	Success     bool           `json:"success"`
	CompletedAt string         `json:"completed_at"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`

	// Control-flag result fields. SupervisorID together with WorkerID is
	// the discriminator the result consumer uses to recognize a
	// supervisor-pass result rather than a job result.
	SupervisorID string   `json:"supervisor_id,omitempty"`
	WorkerID     string   `json:"worker_id,omitempty"`
	Handler      string   `json:"handler,omitempty"`
	Actions      []string `json:"actions,omitempty"`
}

// EncodeResult serializes a Result to JSON bytes.
func EncodeResult(r Result) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResult parses result JSON bytes.
func DecodeResult(data []byte) (Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, fmt.Errorf("flagfile: decode result: %w", err)
	}
	return r, nil
}

// JobFlagFilename is the job_{handler}_{task_id}.flag naming convention.
func JobFlagFilename(handler, taskIDStr string) string {
	return fmt.Sprintf("job_%s_%s.flag", handler, taskIDStr)
}

// SupervisorFlagFilename is the
// supervisor_{handler}_{worker_id}_{task_id}.flag naming convention.
func SupervisorFlagFilename(handler, workerID, taskIDStr string) string {
	return fmt.Sprintf("supervisor_%s_%s_%s.flag", handler, workerID, taskIDStr)
}

// ResultFilename returns "{task_id}.result.json" or "{task_id}.error.json".
func ResultFilename(taskIDStr string, success bool) string {
	if success {
		return taskIDStr + ".result.json"
	}
	return taskIDStr + ".error.json"
}

const maxSummaryLen = 512

// SummarizeParams deterministically renders params as sorted-key JSON,
// truncating to 509 bytes plus "..." when the encoding exceeds 512 bytes.
func SummarizeParams(params map[string]any) (string, error) {
	data, err := marshalSorted(params)
	if err != nil {
		return "", fmt.Errorf("flagfile: summarize params: %w", err)
	}
	if len(data) <= maxSummaryLen {
		return string(data), nil
	}
	return string(data[:maxSummaryLen-3]) + "...", nil
}

// marshalSorted encodes a map with lexicographically sorted keys, like
// Python's json.dumps(..., sort_keys=True), but with compact "," and ":"
// separators (no spaces), giving deterministic target_ref strings.
func marshalSorted(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte("{")
	for i, k := range keys {
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		valBytes, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, keyBytes...)
		buf = append(buf, ':')
		buf = append(buf, valBytes...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// NewTaskID allocates a new task id of the given kind at UTC now.
func NewTaskID(kind taskid.Kind) (string, error) {
	return taskid.Generate(kind)
}

// NowUTC formats the current instant as an ISO-8601 UTC timestamp.
func NowUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
