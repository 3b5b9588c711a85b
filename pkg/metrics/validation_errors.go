package metrics

import "sync"

// DefaultMaxDistinctKeys bounds the number of distinct error signatures
// tracked per table within one sync window. Once at the cap, new
// signatures are dropped and only counted in the table's overflow
// counter; existing signatures keep incrementing.
const DefaultMaxDistinctKeys = 100

// ValidationErrorsItem is one validation error row as reported to the hub.
type ValidationErrorsItem struct {
	Consumer   string `json:"consumer,omitempty"`
	Method     string `json:"method"`
	Path       string `json:"path"`
	Loc        string `json:"loc"`
	Msg        string `json:"msg"`
	Type       string `json:"type"`
	ErrorCount int64  `json:"error_count"`
}

// ValidationErrorCounter counts client validation failures per distinct
// signature, with a cap on distinct signatures. Safe for concurrent use.
type ValidationErrorCounter struct {
	mu       sync.Mutex
	counts   map[ValidationErrorKey]int64
	maxKeys  int
	overflow int64
}

func NewValidationErrorCounter(maxKeys int) *ValidationErrorCounter {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxDistinctKeys
	}
	return &ValidationErrorCounter{
		counts:  make(map[ValidationErrorKey]int64),
		maxKeys: maxKeys,
	}
}

// Add counts one validation failure. New distinct signatures beyond the
// cap only increment the overflow counter.
func (c *ValidationErrorCounter) Add(key ValidationErrorKey) {
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
func (c *ValidationErrorCounter) GetAndReset() ([]ValidationErrorsItem, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]ValidationErrorsItem, 0, len(c.counts))
	for key, count := range c.counts {
		items = append(items, ValidationErrorsItem{
			Consumer:   key.Consumer,
			Method:     key.Method,
			Path:       key.Path,
			Loc:        key.Loc,
			Msg:        key.Msg,
			Type:       key.Type,
			ErrorCount: count,
		})
	}
	overflow := c.overflow
	c.counts = make(map[ValidationErrorKey]int64)
	c.overflow = 0
	return items, overflow
}
