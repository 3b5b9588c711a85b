package metrics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorCounter(t *testing.T) {
	t.Run("counts per distinct signature", func(t *testing.T) {
		counter := NewValidationErrorCounter(0)
		key := NewValidationErrorKey("", "post", "/items", "body.name", "field required", "missing")
		counter.Add(key)
		counter.Add(key)
		counter.Add(NewValidationErrorKey("", "POST", "/items", "body.age", "value is not a valid integer", "type_error"))

		items, overflow := counter.GetAndReset()
		require.Len(t, items, 2)
		assert.Zero(t, overflow)

		for _, item := range items {
			assert.Equal(t, "POST", item.Method)
			if item.Loc == "body.name" {
				assert.Equal(t, int64(2), item.ErrorCount)
				assert.Equal(t, "missing", item.Type)
			}
		}
	})

	t.Run("new signatures beyond the cap go to overflow", func(t *testing.T) {
		counter := NewValidationErrorCounter(3)
		for i := 0; i < 5; i++ {
			counter.Add(NewValidationErrorKey("", "POST", "/items", fmt.Sprintf("body.f%d", i), "field required", "missing"))
		}
		// Already-tracked signatures keep counting at the cap.
		counter.Add(NewValidationErrorKey("", "POST", "/items", "body.f0", "field required", "missing"))

		items, overflow := counter.GetAndReset()
		assert.Len(t, items, 3)
		assert.Equal(t, int64(2), overflow)

		total := int64(0)
		for _, item := range items {
			total += item.ErrorCount
		}
		assert.Equal(t, int64(4), total)
	})

	t.Run("reset clears rows and overflow", func(t *testing.T) {
		counter := NewValidationErrorCounter(1)
		counter.Add(NewValidationErrorKey("", "POST", "/a", "body", "x", "t"))
		counter.Add(NewValidationErrorKey("", "POST", "/b", "body", "x", "t"))

		items, overflow := counter.GetAndReset()
		assert.Len(t, items, 1)
		assert.Equal(t, int64(1), overflow)

		items, overflow = counter.GetAndReset()
		assert.Empty(t, items)
		assert.Zero(t, overflow)
	})
}
