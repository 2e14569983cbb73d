// Package taskid generates and parses the task identifiers embedded in
// flag filenames and payloads: {kind}_{YYYYMMDD}_{HHMMSS}_{rand4}.
package taskid

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"time"
)

// Kind is the identifier prefix: "task" for supervisor-control flags,
// "job" for work flags.
type Kind string

const (
	Task Kind = "task"
	Job  Kind = "job"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var pattern = regexp.MustCompile(`^(task|job)_(\d{8})_(\d{6})_([a-z0-9]{4})$`)

// Generate returns a new task id of the given kind, timestamped at UTC now.
func Generate(kind Kind) (string, error) {
	return generateAt(kind, time.Now().UTC())
}

func generateAt(kind Kind, t time.Time) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", fmt.Errorf("taskid: generate random suffix: %w", err)
	}
	return fmt.Sprintf("%s_%s_%s", kind, t.Format("20060102_150405"), suffix), nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, 4)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// Parsed holds the decomposed fields of a task id.
type Parsed struct {
	Kind      Kind
	Timestamp time.Time
	Suffix    string
}

// Parse decodes a task id produced by Generate, validating its shape and
// timestamp. Returns an error for malformed ids.
func Parse(id string) (Parsed, error) {
	m := pattern.FindStringSubmatch(id)
	if m == nil {
		return Parsed{}, fmt.Errorf("taskid: malformed task id %q", id)
	}
	ts, err := time.Parse("20060102_150405", m[2]+"_"+m[3])
	if err != nil {
		return Parsed{}, fmt.Errorf("taskid: invalid timestamp in %q: %w", id, err)
	}
	return Parsed{
		Kind:      Kind(m[1]),
		Timestamp: ts.UTC(),
		Suffix:    m[4],
	}, nil
}
