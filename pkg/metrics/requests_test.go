package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCounter(t *testing.T) {
	t.Run("aggregates repeated requests onto one row", func(t *testing.T) {
		counter := NewRequestCounter()
		key := NewRequestKey("", "get", "/items", 200)

		counter.Add(key, 12*time.Millisecond, 100, 2200)
		counter.Add(key, 25*time.Millisecond, 200, 2300)
		counter.Add(key, 33*time.Millisecond, 300, 2400)

		items := counter.GetAndReset()
		require.Len(t, items, 1)

		item := items[0]
		assert.Equal(t, "GET", item.Method)
		assert.Equal(t, "/items", item.Path)
		assert.Equal(t, 200, item.StatusCode)
		assert.Equal(t, int64(3), item.RequestCount)
		assert.Equal(t, int64(600), item.RequestSizeSum)
		assert.Equal(t, int64(6900), item.ResponseSizeSum)
		assert.Equal(t, map[int]int64{10: 1, 20: 1, 30: 1}, item.ResponseTimes)
		assert.Equal(t, map[int]int64{0: 3}, item.RequestSizes)
		assert.Equal(t, map[int]int64{2: 3}, item.ResponseSizes)
	})

	t.Run("distinct keys produce distinct rows", func(t *testing.T) {
		counter := NewRequestCounter()
		counter.Add(NewRequestKey("", "GET", "/items", 200), time.Millisecond, -1, -1)
		counter.Add(NewRequestKey("", "GET", "/items", 404), time.Millisecond, -1, -1)
		counter.Add(NewRequestKey("alice", "GET", "/items", 200), time.Millisecond, -1, -1)

		items := counter.GetAndReset()
		assert.Len(t, items, 3)
	})

	t.Run("rows are ordered by path, method, status", func(t *testing.T) {
		counter := NewRequestCounter()
		counter.Add(NewRequestKey("", "POST", "/items", 201), time.Millisecond, -1, -1)
		counter.Add(NewRequestKey("", "GET", "/users", 200), time.Millisecond, -1, -1)
		counter.Add(NewRequestKey("", "GET", "/items", 500), time.Millisecond, -1, -1)
		counter.Add(NewRequestKey("", "GET", "/items", 200), time.Millisecond, -1, -1)

		items := counter.GetAndReset()
		require.Len(t, items, 4)
		assert.Equal(t, "/items", items[0].Path)
		assert.Equal(t, "GET", items[0].Method)
		assert.Equal(t, 200, items[0].StatusCode)
		assert.Equal(t, 500, items[1].StatusCode)
		assert.Equal(t, "POST", items[2].Method)
		assert.Equal(t, "/users", items[3].Path)
	})

	t.Run("negative sizes are treated as unknown", func(t *testing.T) {
		counter := NewRequestCounter()
		key := NewRequestKey("", "GET", "/items", 200)
		counter.Add(key, 5*time.Millisecond, -1, -1)
		counter.Add(key, 5*time.Millisecond, 500, -1)

		items := counter.GetAndReset()
		require.Len(t, items, 1)
		assert.Equal(t, int64(2), items[0].RequestCount)
		assert.Equal(t, int64(500), items[0].RequestSizeSum)
		assert.Equal(t, int64(0), items[0].ResponseSizeSum)
		assert.Equal(t, map[int]int64{0: 1}, items[0].RequestSizes)
		assert.Empty(t, items[0].ResponseSizes)
	})

	t.Run("reset leaves the counter empty", func(t *testing.T) {
		counter := NewRequestCounter()
		counter.Add(NewRequestKey("", "GET", "/items", 200), time.Millisecond, 1, 1)

		require.Len(t, counter.GetAndReset(), 1)
		assert.Empty(t, counter.GetAndReset())
	})
}

func TestResponseTimeBinMs(t *testing.T) {
	assert.Equal(t, 0, responseTimeBinMs(0))
	assert.Equal(t, 0, responseTimeBinMs(9*time.Millisecond))
	assert.Equal(t, 10, responseTimeBinMs(10*time.Millisecond))
	assert.Equal(t, 10, responseTimeBinMs(19999*time.Microsecond))
	assert.Equal(t, 230, responseTimeBinMs(234*time.Millisecond))
}

func TestSizeBinKB(t *testing.T) {
	assert.Equal(t, 0, sizeBinKB(0))
	assert.Equal(t, 0, sizeBinKB(999))
	assert.Equal(t, 1, sizeBinKB(1000))
	assert.Equal(t, 123, sizeBinKB(123456))
}
