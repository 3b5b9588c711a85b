package middlewares

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/apimetry/apimetry-go/pkg/client"
	"github.com/apimetry/apimetry-go/pkg/metrics"
)

type contextKey struct{}

var consumerContextKey contextKey

// WithConsumer attaches the consumer identity to a request context for
// the HTTP middleware to pick up.
func WithConsumer(ctx context.Context, consumer metrics.Consumer) context.Context {
	return context.WithValue(ctx, consumerContextKey, consumer)
}

// ConsumerFrom returns the consumer attached to the context, if any.
func ConsumerFrom(ctx context.Context) metrics.Consumer {
	if consumer, ok := ctx.Value(consumerContextKey).(metrics.Consumer); ok {
		return consumer
	}
	return metrics.Consumer{}
}

// HTTP wraps a net/http handler registered on a Go 1.22+ ServeMux. The
// route template is taken from the matched pattern; requests that match
// no pattern are not aggregated.
func HTTP(c *client.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				if rec := recover(); rec != nil {
					if path := patternPath(r); path != "" {
						consumer := ConsumerFrom(r.Context())
						c.RecordServerError(consumer.Identifier, r.Method, path, &panicError{value: rec}, debug.Stack())
						c.RecordRequest(client.RequestInfo{
							Consumer:     consumer.Identifier,
							Method:       r.Method,
							Path:         path,
							StatusCode:   http.StatusInternalServerError,
							ResponseTime: time.Since(start),
							RequestSize:  r.ContentLength,
							ResponseSize: -1,
						})
					}
					panic(rec)
				}
			}()

			next.ServeHTTP(recorder, r)

			path := patternPath(r)
			if path == "" {
				return
			}
			consumer := ConsumerFrom(r.Context())
			if consumer.Name != "" || consumer.Group != "" {
				c.SetConsumer(consumer)
			}
			c.RecordRequest(client.RequestInfo{
				Consumer:     consumer.Identifier,
				Method:       r.Method,
				Path:         path,
				StatusCode:   recorder.status,
				ResponseTime: time.Since(start),
				RequestSize:  r.ContentLength,
				ResponseSize: recorder.bytes,
			})
		})
	}
}

// patternPath strips the optional method prefix from the matched
// ServeMux pattern ("GET /items/{id}" -> "/items/{id}").
func patternPath(r *http.Request) string {
	pattern := r.Pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = pattern[i+1:]
	}
	return pattern
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.wroteHeader = true
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += int64(n)
	return n, err
}
