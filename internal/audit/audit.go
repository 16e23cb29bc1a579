package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	OutcomeSuccess   = "success"
	OutcomeToolError = "tool_error"
	OutcomeError     = "error"
	OutcomeRejected  = "rejected"
)

// Event records a single tool invocation.
type Event struct {
	Timestamp  time.Time      `json:"timestamp"`
	CallID     string         `json:"callId"`
	Peer       string         `json:"peer,omitempty"`
	User       string         `json:"user,omitempty"`
	Tool       string         `json:"tool"`
	Toolset    string         `json:"toolset,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Outcome    string         `json:"outcome"`
	DurationMS int64          `json:"durationMs"`
	Error      string         `json:"error,omitempty"`
}

// Logger writes one JSON line per Event. Safe for concurrent use.
type Logger struct {
	out io.Writer
	mu  sync.Mutex
}

var jsonMarshal = json.Marshal

func NewLogger(out io.Writer) *Logger {
	if out == nil {
		out = io.Discard
	}
	return &Logger{out: out}
}

func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	data, err := jsonMarshal(event)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(data, '\n'))
}

// Open returns a Logger appending to path. An empty path or "-" logs to
// fallback. The returned close func is never nil.
func Open(path string, fallback io.Writer) (*Logger, func() error, error) {
	if path == "" || path == "-" {
		return NewLogger(fallback), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, func() error { return nil }, errors.Wrapf(err, "open audit log %s", path)
	}
	return NewLogger(f), f.Close, nil
}
