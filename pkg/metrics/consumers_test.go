package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConsumer(t *testing.T) {
	t.Run("trims and clamps fields", func(t *testing.T) {
		consumer := NewConsumer("  " + strings.Repeat("i", 200)).
			WithName(strings.Repeat("n", 100)).
			WithGroup("  billing  ")

		assert.Len(t, consumer.Identifier, 128)
		assert.Len(t, consumer.Name, 64)
		assert.Equal(t, "billing", consumer.Group)
	})

	t.Run("blank identifier yields a zero consumer", func(t *testing.T) {
		assert.Equal(t, Consumer{}, NewConsumer("   "))
	})
}

func TestConsumerRegistry(t *testing.T) {
	t.Run("ignores consumers without metadata", func(t *testing.T) {
		registry := NewConsumerRegistry()
		registry.AddOrUpdate(NewConsumer("alice"))

		assert.Empty(t, registry.GetAndResetUpdated())
	})

	t.Run("reports new and changed consumers only", func(t *testing.T) {
		registry := NewConsumerRegistry()
		registry.AddOrUpdate(NewConsumer("alice").WithName("Alice"))

		items := registry.GetAndResetUpdated()
		require.Len(t, items, 1)
		assert.Equal(t, "Alice", items[0].Name)

		// Same metadata again is not an update.
		registry.AddOrUpdate(NewConsumer("alice").WithName("Alice"))
		assert.Empty(t, registry.GetAndResetUpdated())

		// A metadata change is.
		registry.AddOrUpdate(NewConsumer("alice").WithName("Alice").WithGroup("ops"))
		items = registry.GetAndResetUpdated()
		require.Len(t, items, 1)
		assert.Equal(t, "ops", items[0].Group)
	})

	t.Run("retains state across drains", func(t *testing.T) {
		registry := NewConsumerRegistry()
		registry.AddOrUpdate(NewConsumer("alice").WithName("Alice").WithGroup("ops"))
		registry.GetAndResetUpdated()

		// An empty-name update must not erase the stored name.
		registry.AddOrUpdate(NewConsumer("alice").WithGroup("ops"))
		assert.Empty(t, registry.GetAndResetUpdated())
	})
}
