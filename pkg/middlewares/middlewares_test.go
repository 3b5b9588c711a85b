package middlewares

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apimetry/apimetry-go/pkg/client"
	"github.com/apimetry/apimetry-go/pkg/config"
	"github.com/apimetry/apimetry-go/pkg/hub"
)

// captureSender records hub traffic so tests can inspect what the
// middleware fed into the client, via the final drain on Stop.
type captureSender struct {
	mu    sync.Mutex
	syncs []*hub.SyncPayload
}

func (s *captureSender) SendStartup(context.Context, *hub.StartupPayload) error { return nil }

func (s *captureSender) SendSync(_ context.Context, payload *hub.SyncPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs = append(s.syncs, payload)
	return nil
}

func (s *captureSender) SendLog(context.Context, string, io.Reader) error { return nil }

func newTestTelemetry(t *testing.T) (*client.Client, *captureSender) {
	t.Helper()
	cfg := config.Default()
	cfg.ClientID = "8bbd9f26-7136-4bb9-9e7c-2e7e6a1dfc03"
	cfg.Env = "test"

	sender := &captureSender{}
	c, err := client.New(cfg, client.WithSender(sender))
	require.NoError(t, err)
	require.NoError(t, c.Start())
	return c, sender
}

// drainPayload stops the client and returns the drained window, or nil
// when the window was empty.
func drainPayload(t *testing.T, c *client.Client, sender *captureSender) *hub.SyncPayload {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.syncs) == 0 {
		return nil
	}
	return sender.syncs[len(sender.syncs)-1]
}
