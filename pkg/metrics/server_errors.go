package metrics

import (
	"strings"
	"sync"
)

const (
	// MaxErrorMessageLength is the wire limit for server error messages.
	MaxErrorMessageLength = 2048
	// MaxStackTraceLength is the wire limit for server error stack traces.
	MaxStackTraceLength = 65536
)

// ServerErrorsItem is one server error row as reported to the hub.
type ServerErrorsItem struct {
	Consumer   string `json:"consumer,omitempty"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Type       string `json:"type"`
	Msg        string `json:"msg"`
	StackTrace string `json:"traceback"`
	ErrorCount int64  `json:"error_count"`
}

// ServerErrorCounter counts server errors per distinct signature, with a
// cap on distinct signatures. Safe for concurrent use.
type ServerErrorCounter struct {
	mu       sync.Mutex
	counts   map[ServerErrorKey]int64
	maxKeys  int
	overflow int64
}

func NewServerErrorCounter(maxKeys int) *ServerErrorCounter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxDistinctKeys
	}
	return &ServerErrorCounter{
		counts:  make(map[ServerErrorKey]int64),
		maxKeys: maxKeys,
	}
}

// Add counts one server error. New distinct signatures beyond the cap
// only increment the overflow counter.
func (c *ServerErrorCounter) Add(key ServerErrorKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, tracked := c.counts[key]; !tracked && len(c.counts) >= c.maxKeys {
		c.overflow++
		return
	}
	c.counts[key]++
}

// GetAndReset drains all rows plus the overflow counter and resets the
// table to its zero state.
func (c *ServerErrorCounter) GetAndReset() ([]ServerErrorsItem, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]ServerErrorsItem, 0, len(c.counts))
	for key, count := range c.counts {
		items = append(items, ServerErrorsItem{
			Consumer:   key.Consumer,
			Method:     key.Method,
			Path:       key.Path,
			Type:       key.Type,
			Msg:        key.Msg,
			StackTrace: key.StackTrace,
			ErrorCount: count,
		})
	}
	overflow := c.overflow
	c.counts = make(map[ServerErrorKey]int64)
	c.overflow = 0
	return items, overflow
}

// TruncateErrorMessage caps an error message at MaxErrorMessageLength,
// marking the cut.
func TruncateErrorMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if len(msg) <= MaxErrorMessageLength {
		return msg
	}
	const suffix = "... (truncated)"
	return msg[:MaxErrorMessageLength-len(suffix)] + suffix
}

// TruncateStackTrace caps a stack trace at MaxStackTraceLength, keeping
// the innermost frames (the tail) and marking the cut at the top.
func TruncateStackTrace(stackTrace string) string {
	stackTrace = strings.TrimSpace(stackTrace)
	if len(stackTrace) <= MaxStackTraceLength {
		return stackTrace
	}
	const prefix = "... (truncated) ..."
	cutoff := MaxStackTraceLength - len(prefix) - 1

	lines := strings.Split(stackTrace, "\n")
	kept := make([]string, 0, len(lines))
	length := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if length+len(lines[i])+1 > cutoff {
			break
		}
		kept = append(kept, lines[i])
		length += len(lines[i]) + 1
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return prefix + "\n" + strings.Join(kept, "\n")
}
