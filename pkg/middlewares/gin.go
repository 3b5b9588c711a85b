// Package middlewares provides framework adapters that observe
// request/response pairs and feed the telemetry client. Adapters only
// extract framework-specific data; all aggregation semantics live in the
// client.
package middlewares

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apimetry/apimetry-go/pkg/client"
	"github.com/apimetry/apimetry-go/pkg/hub"
	"github.com/apimetry/apimetry-go/pkg/metrics"
)

const ginConsumerKey = "apimetry.consumer"

// Gin returns a middleware observing every request handled by the
// engine. Register it before routes and handlers that may panic.
func Gin(c *client.Client) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				path := ctx.FullPath()
				if path != "" {
					consumer := GinConsumer(ctx)
					err, ok := r.(error)
					if !ok {
						err = &panicError{value: r}
					}
					c.RecordServerError(consumer.Identifier, ctx.Request.Method, path, err, debug.Stack())
					c.RecordRequest(client.RequestInfo{
						Consumer:     consumer.Identifier,
						Method:       ctx.Request.Method,
						Path:         path,
						StatusCode:   500,
						ResponseTime: time.Since(start),
						RequestSize:  ctx.Request.ContentLength,
						ResponseSize: -1,
					})
				}
				panic(r)
			}
		}()

		ctx.Next()

		// Unmatched routes have no template and are not aggregated.
		path := ctx.FullPath()
		if path == "" {
			return
		}

		consumer := GinConsumer(ctx)
		if consumer.Name != "" || consumer.Group != "" {
			c.SetConsumer(consumer)
		}

		c.RecordRequest(client.RequestInfo{
			Consumer:     consumer.Identifier,
			Method:       ctx.Request.Method,
			Path:         path,
			StatusCode:   ctx.Writer.Status(),
			ResponseTime: time.Since(start),
			RequestSize:  ctx.Request.ContentLength,
			ResponseSize: int64(ctx.Writer.Size()),
		})

		for _, ginErr := range ctx.Errors {
			switch {
			case ginErr.IsType(gin.ErrorTypeBind):
				c.RecordValidationError(consumer.Identifier, ctx.Request.Method, path,
					"body", ginErr.Error(), "binding")
			case ctx.Writer.Status() >= 500:
				c.RecordServerError(consumer.Identifier, ctx.Request.Method, path, ginErr.Err, nil)
			}
		}
	}
}

// SetGinConsumer attaches the consumer identity to the current request.
// Call from handlers or auth middleware once the caller is known.
func SetGinConsumer(ctx *gin.Context, consumer metrics.Consumer) {
	ctx.Set(ginConsumerKey, consumer)
}

// GinConsumer returns the consumer attached to the request, if any.
func GinConsumer(ctx *gin.Context) metrics.Consumer {
	if v, ok := ctx.Get(ginConsumerKey); ok {
		if consumer, ok := v.(metrics.Consumer); ok {
			return consumer
		}
	}
	return metrics.Consumer{}
}

// GinRoutes lists the engine's registered routes for the startup
// handshake. Call after all routes are registered.
func GinRoutes(engine *gin.Engine) []hub.PathInfo {
	routes := engine.Routes()
	paths := make([]hub.PathInfo, 0, len(routes))
	for _, route := range routes {
		paths = append(paths, hub.PathInfo{Method: route.Method, Path: route.Path})
	}
	return paths
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprint(e.value)
}
