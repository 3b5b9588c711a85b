package metrics

import (
	"time"

	"go.uber.org/zap"
)

// Snapshot is an immutable point-in-time copy of all accumulated counter
// data, produced by SnapshotAndReset.
type Snapshot struct {
	Requests                []RequestsItem
	ValidationErrors        []ValidationErrorsItem
	ServerErrors            []ServerErrorsItem
	Consumers               []ConsumersItem
	ValidationErrorOverflow int64
	ServerErrorOverflow     int64
}

// Empty reports whether the snapshot carries no data worth sending.
func (s Snapshot) Empty() bool {
	return len(s.Requests) == 0 &&
		len(s.ValidationErrors) == 0 &&
		len(s.ServerErrors) == 0 &&
		len(s.Consumers) == 0 &&
		s.ValidationErrorOverflow == 0 &&
		s.ServerErrorOverflow == 0
}

// StoreConfig bounds the distinct-key tables. Zero values fall back to
// DefaultMaxDistinctKeys.
type StoreConfig struct {
	MaxValidationErrorKeys int
	MaxServerErrorKeys     int
}

// Store is the top-level aggregation store shared between the request
// path and the sync loop. Each sub-table has its own mutual exclusion
// domain, so a snapshot never holds a single coarse lock across all
// tables. The Record methods never block on I/O and never panic out to
// the caller; internal failures are logged and swallowed.
type Store struct {
	logger           *zap.SugaredLogger
	requests         *RequestCounter
	validationErrors *ValidationErrorCounter
	serverErrors     *ServerErrorCounter
	consumers        *ConsumerRegistry
}

func NewStore(logger *zap.SugaredLogger, cfg StoreConfig) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{
		logger:           logger,
		requests:         NewRequestCounter(),
		validationErrors: NewValidationErrorCounter(cfg.MaxValidationErrorKeys),
		serverErrors:     NewServerErrorCounter(cfg.MaxServerErrorKeys),
		consumers:        NewConsumerRegistry(),
	}
}

// RecordRequest counts one request/response pair. Negative sizes mean
// unknown. Safe to call from any number of request-handling goroutines.
func (s *Store) RecordRequest(consumer, method, path string, statusCode int, responseTime time.Duration, requestSize, responseSize int64) {
	defer s.recovered("record request")
	s.requests.Add(NewRequestKey(consumer, method, path, statusCode), responseTime, requestSize, responseSize)
}

// RecordValidationError counts one client validation failure.
func (s *Store) RecordValidationError(consumer, method, path, loc, msg, errType string) {
	defer s.recovered("record validation error")
	s.validationErrors.Add(NewValidationErrorKey(consumer, method, path, loc, msg, errType))
}

// RecordServerError counts one server error. Message and stack trace are
// truncated to their wire limits.
func (s *Store) RecordServerError(consumer, method, path, errType, msg, stackTrace string) {
	defer s.recovered("record server error")
	s.serverErrors.Add(NewServerErrorKey(consumer, method, path, errType, msg, stackTrace))
}

// SetConsumer registers or refreshes consumer metadata.
func (s *Store) SetConsumer(consumer Consumer) {
	defer s.recovered("set consumer")
	s.consumers.AddOrUpdate(consumer)
}

// SnapshotAndReset atomically drains every table into a Snapshot. Each
// table's drain is linearizable with respect to concurrent Record calls
// on that table: an increment lands entirely in this snapshot or entirely
// in the next one. The consumer registry reports updates but keeps its
// state.
func (s *Store) SnapshotAndReset() Snapshot {
	var snapshot Snapshot
	snapshot.Requests = s.requests.GetAndReset()
	snapshot.ValidationErrors, snapshot.ValidationErrorOverflow = s.validationErrors.GetAndReset()
	snapshot.ServerErrors, snapshot.ServerErrorOverflow = s.serverErrors.GetAndReset()
	snapshot.Consumers = s.consumers.GetAndResetUpdated()
	return snapshot
}

// recovered swallows panics on the record path; telemetry must never
// break the host's request handling.
func (s *Store) recovered(op string) {
	if r := recover(); r != nil {
		s.logger.Debugw("Recovered panic in aggregation store", "op", op, "panic", r)
	}
}
