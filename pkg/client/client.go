// Package client provides the telemetry client object: the aggregation
// store entry points used by middleware adapters and the background sync
// loop shipping snapshots to the hub.
package client

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apimetry/apimetry-go/pkg/config"
	"github.com/apimetry/apimetry-go/pkg/hub"
	"github.com/apimetry/apimetry-go/pkg/metrics"
	"github.com/apimetry/apimetry-go/pkg/requestlog"
	"github.com/apimetry/apimetry-go/pkg/resource"
)

// Sender is the outbound transport boundary. hub.Sender is the production
// implementation; tests substitute their own.
type Sender interface {
	SendStartup(ctx context.Context, payload *hub.StartupPayload) error
	SendSync(ctx context.Context, payload *hub.SyncPayload) error
	SendLog(ctx context.Context, logUUID string, body io.Reader) error
}

// Option is the functional option type for Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSender replaces the hub sender, mainly for tests.
func WithSender(sender Sender) Option {
	return func(c *Client) {
		c.sender = sender
	}
}

// RequestInfo is one request/response observation handed to
// RecordRequest by a middleware adapter. Sizes follow the
// http.Request.ContentLength convention: negative means unknown.
type RequestInfo struct {
	Consumer     string
	Method       string
	Path         string
	StatusCode   int
	ResponseTime time.Duration
	RequestSize  int64
	ResponseSize int64
}

// Client is the telemetry client. Construct exactly one per process,
// pass it to the middleware adapters, and drive its lifecycle with
// Start and Stop. There is no global instance.
type Client struct {
	cfg          *config.Config
	logger       *zap.SugaredLogger
	instanceUUID string

	store      *metrics.Store
	requestLog *requestlog.Logger
	sampler    *resource.Sampler
	sender     Sender
	syncer     *syncer

	startupMu        sync.Mutex
	startupFramework string
	startupPaths     []hub.PathInfo
}

// New validates the configuration and builds a client. The client does
// nothing until Start is called.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		cfg:          cfg,
		logger:       zap.NewNop().Sugar(),
		instanceUUID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.store = metrics.NewStore(c.logger, metrics.StoreConfig{
		MaxValidationErrorKeys: cfg.Limits.MaxValidationErrorKeys,
		MaxServerErrorKeys:     cfg.Limits.MaxServerErrorKeys,
	})
	c.requestLog = requestlog.NewLogger(cfg.RequestLog, c.logger)
	if sampler, err := resource.NewSampler(); err == nil {
		c.sampler = sampler
	}
	if c.sender == nil {
		c.sender = hub.NewSender(cfg.SenderConfig(), cfg.ClientID, cfg.Env, c.logger)
	}
	c.syncer = newSyncer(c)
	return c, nil
}

// InstanceUUID identifies this process instance to the hub.
func (c *Client) InstanceUUID() string {
	return c.instanceUUID
}

// State returns the sync loop state.
func (c *Client) State() State {
	return c.syncer.State()
}

// SetStartupData sets the framework identity and endpoint inventory for
// the startup handshake. Call before Start, or at any point before the
// handshake succeeds; later calls are ignored by an already-completed
// handshake.
func (c *Client) SetStartupData(framework string, paths []hub.PathInfo) {
	c.startupMu.Lock()
	defer c.startupMu.Unlock()
	c.startupFramework = framework
	c.startupPaths = paths
}

// startupPayload assembles a fresh handshake payload; a client without
// startup data still handshakes with its bare identity.
func (c *Client) startupPayload() *hub.StartupPayload {
	c.startupMu.Lock()
	defer c.startupMu.Unlock()
	return hub.NewStartupPayload(c.instanceUUID, c.startupFramework, c.cfg.AppVersion, c.startupPaths)
}

// Start launches the background sync loop. It may be called once.
func (c *Client) Start() error {
	if err := c.syncer.start(); err != nil {
		return err
	}
	c.logger.Infow("Telemetry client started",
		"instance_uuid", c.instanceUUID,
		"env", c.cfg.Env,
		"sync_interval", c.cfg.Sync.Interval,
	)
	return nil
}

// Stop signals the sync loop to drain and waits for it to finish. The
// drain itself is bounded by the configured drain timeout; ctx bounds
// only the wait.
func (c *Client) Stop(ctx context.Context) error {
	c.syncer.stop()
	select {
	case <-c.syncer.doneCh:
		c.requestLog.Close()
		c.logger.Infow("Telemetry client stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordRequest counts one request/response pair. Never blocks, never
// fails observably; safe on the hot path.
func (c *Client) RecordRequest(info RequestInfo) {
	c.store.RecordRequest(info.Consumer, info.Method, info.Path, info.StatusCode,
		info.ResponseTime, info.RequestSize, info.ResponseSize)
	if c.requestLog.Enabled() {
		c.requestLog.Log(requestlog.Entry{
			Timestamp:    time.Now(),
			Consumer:     info.Consumer,
			Method:       info.Method,
			Path:         info.Path,
			StatusCode:   info.StatusCode,
			ResponseTime: float64(info.ResponseTime) / float64(time.Millisecond),
			RequestSize:  info.RequestSize,
			ResponseSize: info.ResponseSize,
		})
	}
}

// RecordValidationError counts one client validation failure.
func (c *Client) RecordValidationError(consumer, method, path, loc, msg, errType string) {
	c.store.RecordValidationError(consumer, method, path, loc, msg, errType)
}

// RecordServerError counts one server error with its stack trace.
func (c *Client) RecordServerError(consumer, method, path string, err error, stackTrace []byte) {
	if err == nil {
		return
	}
	c.store.RecordServerError(consumer, method, path, fmt.Sprintf("%T", err), err.Error(), string(stackTrace))
}

// SetConsumer registers or refreshes consumer metadata for per-consumer
// metrics.
func (c *Client) SetConsumer(consumer metrics.Consumer) {
	c.store.SetConsumer(consumer)
}
