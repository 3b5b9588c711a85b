package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/failsafe-go/failsafe-go/timeout"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the hub ingestion endpoint.
	DefaultBaseURL = "https://hub.apimetry.io"
	// hubVersion is the wire protocol version path segment.
	hubVersion = "v2"
)

// SenderConfig tunes the sender's HTTP client and retry budget. The total
// retry budget must stay below the sync interval so a slow outage cannot
// pile syncs on top of each other.
type SenderConfig struct {
	BaseURL        string
	RequestTimeout time.Duration // per-attempt HTTP timeout
	MaxRetries     int           // retries after the first attempt
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RetryJitter    time.Duration
	RetryBudget    time.Duration // wall-clock cap across all attempts
}

// DefaultSenderConfig returns a configuration with sensible defaults.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		BaseURL:        DefaultBaseURL,
		RequestTimeout: 10 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: 1 * time.Second,
		RetryMaxDelay:  4 * time.Second,
		RetryJitter:    250 * time.Millisecond,
		RetryBudget:    30 * time.Second,
	}
}

// Sender posts payloads to the hub. Transient failures (network errors,
// 5xx, 429) are retried with exponential backoff inside a bounded time
// budget; permanent failures (other 4xx) are surfaced immediately.
type Sender struct {
	baseURL    string
	httpClient *http.Client
	executor   failsafe.Executor[any]
	logger     *zap.SugaredLogger
}

// NewSender builds a sender for the given client identity. The clientID
// and env become part of the ingestion URL.
func NewSender(cfg SenderConfig, clientID, env string, logger *zap.SugaredLogger) *Sender {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	retry := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return retryable(err)
		}).
		WithMaxRetries(cfg.MaxRetries).
		WithBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay).
		WithJitter(cfg.RetryJitter).
		OnRetry(func(event failsafe.ExecutionEvent[any]) {
			logger.Debugw("Retrying hub request", "attempt", event.Attempts(), "error", event.LastError())
		}).
		OnRetriesExceeded(func(event failsafe.ExecutionEvent[any]) {
			logger.Warnw("Hub request retries exhausted", "max_retries", cfg.MaxRetries, "error", event.LastError())
		}).
		Build()
	budget := timeout.NewBuilder[any](cfg.RetryBudget).Build()

	return &Sender{
		baseURL:    fmt.Sprintf("%s/%s/%s/%s", cfg.BaseURL, hubVersion, clientID, env),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		executor:   failsafe.With(budget, retry),
		logger:     logger,
	}
}

// SendStartup posts the one-time handshake payload.
func (s *Sender) SendStartup(ctx context.Context, payload *StartupPayload) error {
	s.logger.Debugw("Sending startup data to hub")
	return s.postJSON(ctx, "startup", payload)
}

// SendSync posts one aggregation window.
func (s *Sender) SendSync(ctx context.Context, payload *SyncPayload) error {
	s.logger.Debugw("Synchronizing data with hub")
	return s.postJSON(ctx, "sync", payload)
}

// SendLog uploads one compressed request log file. Log uploads are not
// retried here; the caller keeps the file and retries on a later sync.
func (s *Sender) SendLog(ctx context.Context, logUUID string, body io.Reader) error {
	s.logger.Debugw("Uploading request log data to hub", "uuid", logUUID)
	url := fmt.Sprintf("%s/log?uuid=%s", s.baseURL, logUUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("build log request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "gzip")
	return s.do(req)
}

func (s *Sender) postJSON(ctx context.Context, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", endpoint, err)
	}
	url := fmt.Sprintf("%s/%s", s.baseURL, endpoint)

	return s.executor.WithContext(ctx).RunWithExecution(func(_ failsafe.Execution[any]) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build %s request: %w", endpoint, err)
		}
		req.Header.Set("Content-Type", "application/json")
		return s.do(req)
	})
}

func (s *Sender) do(req *http.Request) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Cap the drained body; it is only used for error context.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrInvalidClientID
	case resp.StatusCode == http.StatusPaymentRequired:
		if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
			return &SuspendedError{RetryAfter: retryAfter}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	case resp.StatusCode == http.StatusUnprocessableEntity:
		s.logger.Errorw("Hub rejected payload as invalid", "body", string(body))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	default:
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
