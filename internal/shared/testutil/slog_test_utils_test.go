package testutil

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferedSlogHandler(t *testing.T) {
	t.Run("captures records and bound attrs", func(t *testing.T) {
		logger, handler := NewTestLogger(t)
		component := logger.With(slog.String("component", "pipeline"))

		component.Info("stage computed", slog.String("stage", "allocation"))
		logger.Error("request failed", slog.Int("status", 502))

		assert.Equal(t, 2, handler.Count())
		assert.True(t, handler.ContainsMessage("stage computed"))
		assert.True(t, handler.ContainsAttr("component", "pipeline"))
		assert.True(t, handler.ContainsAttr("stage", "allocation"))
		assert.Len(t, handler.GetRecordsByLevel(slog.LevelError), 1)
	})

	t.Run("groups prefix keys", func(t *testing.T) {
		logger, handler := NewTestLogger(t)
		logger.WithGroup("fetch").Info("done", slog.Int("rows", 3))
		assert.True(t, handler.ContainsAttr("fetch.rows", int64(3)))
	})

	t.Run("clear", func(t *testing.T) {
		logger, handler := NewTestLogger(t)
		logger.Info("one")
		logger.Info("two")
		handler.Clear()
		assert.Zero(t, handler.Count())
	})

	t.Run("assertion helpers", func(t *testing.T) {
		logger, handler := NewTestLogger(t)
		logger.Info("important message", slog.String("component", "test"))
		AssertLogContains(t, handler, slog.LevelInfo, "important")
		AssertLogAttr(t, handler, "component", "test")
		AssertNoErrors(t, handler)
	})

	t.Run("concurrent logging", func(t *testing.T) {
		logger, handler := NewTestLogger(t)
		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				logger.With("worker", i).Info("concurrent log")
			}()
		}
		wg.Wait()
		assert.Equal(t, 10, handler.Count())
	})
}
