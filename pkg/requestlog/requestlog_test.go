package requestlog

import (
	"bufio"
	"encoding/json"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(path string) Entry {
	return Entry{
		Timestamp:    time.Now(),
		Method:       "GET",
		Path:         path,
		StatusCode:   200,
		ResponseTime: 12.5,
	}
}

func newTestLogger(t *testing.T, cfg Config) *Logger {
	t.Helper()
	cfg.Enabled = true
	logger := NewLogger(cfg, nil)
	t.Cleanup(logger.Close)
	return logger
}

func TestLoggerQueue(t *testing.T) {
	t.Run("disabled logger drops everything", func(t *testing.T) {
		logger := NewLogger(Config{}, nil)
		defer logger.Close()
		logger.Log(testEntry("/items"))

		require.NoError(t, logger.WriteToFile())
		logger.RotateFile()
		assert.Nil(t, logger.NextFile())
	})

	t.Run("nil logger is safe", func(t *testing.T) {
		var logger *Logger
		assert.False(t, logger.Enabled())
	})

	t.Run("queue is bounded", func(t *testing.T) {
		logger := newTestLogger(t, Config{MaxQueueSize: 2})
		for i := 0; i < 5; i++ {
			logger.Log(testEntry("/items"))
		}

		require.NoError(t, logger.WriteToFile())
		logger.RotateFile()
		file := logger.NextFile()
		require.NotNil(t, file)
		assert.Len(t, readEntries(t, file), 2)
	})
}

func TestLoggerFiles(t *testing.T) {
	t.Run("entries round-trip through the compressed file", func(t *testing.T) {
		logger := newTestLogger(t, Config{})
		logger.Log(testEntry("/items"))
		logger.Log(testEntry("/users"))

		require.NoError(t, logger.WriteToFile())
		logger.RotateFile()

		file := logger.NextFile()
		require.NotNil(t, file)
		assert.NotEmpty(t, file.UUID)

		entries := readEntries(t, file)
		require.Len(t, entries, 2)
		assert.Equal(t, "/items", entries[0].Path)
		assert.Equal(t, "/users", entries[1].Path)

		assert.Nil(t, logger.NextFile())
	})

	t.Run("rotates when the file exceeds the size bound", func(t *testing.T) {
		logger := newTestLogger(t, Config{MaxFileSizeBytes: 64})
		logger.Log(testEntry("/items"))
		require.NoError(t, logger.WriteToFile())
		logger.Log(testEntry("/items"))
		require.NoError(t, logger.WriteToFile())

		// Both writes exceeded the bound, so both files are staged without
		// an explicit rotate.
		first := logger.NextFile()
		second := logger.NextFile()
		assert.NotNil(t, first)
		assert.NotNil(t, second)
	})

	t.Run("pending files are bounded, oldest dropped first", func(t *testing.T) {
		logger := newTestLogger(t, Config{MaxFileSizeBytes: 1, MaxPendingFiles: 2})
		for i := 0; i < 4; i++ {
			logger.Log(testEntry("/items"))
			require.NoError(t, logger.WriteToFile())
		}

		count := 0
		for logger.NextFile() != nil {
			count++
		}
		assert.Equal(t, 2, count)
	})

	t.Run("retry puts the file back at the head", func(t *testing.T) {
		logger := newTestLogger(t, Config{MaxFileSizeBytes: 1})
		logger.Log(testEntry("/items"))
		require.NoError(t, logger.WriteToFile())
		logger.Log(testEntry("/users"))
		require.NoError(t, logger.WriteToFile())

		first := logger.NextFile()
		require.NotNil(t, first)
		logger.RetryLater(first)

		again := logger.NextFile()
		require.NotNil(t, again)
		assert.Equal(t, first.UUID, again.UUID)
	})
}

func TestLoggerSuspend(t *testing.T) {
	t.Run("suspension clears buffers and drops new entries", func(t *testing.T) {
		logger := newTestLogger(t, Config{})
		logger.Log(testEntry("/items"))
		require.NoError(t, logger.WriteToFile())
		logger.RotateFile()

		logger.Suspend(time.Hour)
		assert.Nil(t, logger.NextFile())

		logger.Log(testEntry("/items"))
		require.NoError(t, logger.WriteToFile())
		logger.RotateFile()
		assert.Nil(t, logger.NextFile())
	})

	t.Run("maintain lifts an expired suspension", func(t *testing.T) {
		logger := newTestLogger(t, Config{})
		logger.Suspend(time.Nanosecond)
		time.Sleep(time.Millisecond)
		logger.Maintain()

		logger.Log(testEntry("/items"))
		require.NoError(t, logger.WriteToFile())
		logger.RotateFile()
		assert.NotNil(t, logger.NextFile())
	})
}

func readEntries(t *testing.T, file *File) []Entry {
	t.Helper()
	reader, err := file.OpenCompressed()
	require.NoError(t, err)
	gz, err := gzip.NewReader(reader)
	require.NoError(t, err)

	var entries []Entry
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		var entry Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}
