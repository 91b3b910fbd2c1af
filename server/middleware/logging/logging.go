// Package logging provides a server middleware that logs every processed
// request with zap.
package logging

import (
	"context"
	"time"

	"github.com/achilleasa/katapayadi"
	"github.com/achilleasa/katapayadi/server"
	"github.com/achilleasa/katapayadi/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Option configures the logging middleware.
type Option func(*options)

type options struct {
	logger       *zap.Logger
	level        zapcore.Level
	errorLevel   zapcore.Level
	logSuccesses bool
	now          func() time.Time
}

// WithLogger sets the logger used by the middleware. The shared katapayadi
// logger is used by default.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLevel sets the level for successful requests. Defaults to debug.
func WithLevel(l zapcore.Level) Option {
	return func(o *options) { o.level = l }
}

// WithErrorLevel sets the level for failed requests. Defaults to warn.
func WithErrorLevel(l zapcore.Level) Option {
	return func(o *options) { o.errorLevel = l }
}

// ErrorsOnly suppresses the entries for successful requests.
func ErrorsOnly() Option {
	return func(o *options) { o.logSuccesses = false }
}

// Factory returns a middleware factory that logs the service, endpoint,
// request id, duration and error of each request after the rest of the chain
// has processed it.
func Factory(opts ...Option) server.MiddlewareFactory {
	o := options{
		level:        zapcore.DebugLevel,
		errorLevel:   zapcore.WarnLevel,
		logSuccesses: true,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next server.Middleware) server.Middleware {
		return server.MiddlewareFunc(func(ctx context.Context, req transport.ImmutableMessage, res transport.Message) {
			start := o.now()
			next.Handle(ctx, req, res)

			_, err := res.Payload()
			if err == nil && !o.logSuccesses {
				return
			}

			logger := o.logger
			if logger == nil {
				logger = katapayadi.Logger()
			}

			level := o.level
			msg := "request processed"
			if err != nil {
				level = o.errorLevel
				msg = "request failed"
			}

			ce := logger.Check(level, msg)
			if ce == nil {
				return
			}

			fields := []zap.Field{
				zap.String("service", server.ServiceFromContext(ctx)),
				zap.String("endpoint", server.EndpointFromContext(ctx)),
				zap.String("request_id", req.ID()),
				zap.Duration("duration", o.now().Sub(start)),
			}
			if sender := req.Sender(); sender != "" {
				fields = append(fields, zap.String("sender", sender))
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			ce.Write(fields...)
		})
	}
}
