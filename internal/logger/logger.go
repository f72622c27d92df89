package logger

import (
	"context"
	"io"
	"os"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Setup builds the process logger. Production logs are JSON; everything else
// is human readable text. An empty or invalid level falls back to the
// environment default.
func Setup(environment, level string) *logrus.Logger {
	return New(os.Stdout, environment, level)
}

func New(out io.Writer, environment, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)

	if environment == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	log.SetLevel(defaultLevel(environment))
	if level != "" {
		if lvl, err := logrus.ParseLevel(level); err == nil {
			log.SetLevel(lvl)
		}
	}

	return log
}

func defaultLevel(environment string) logrus.Level {
	switch environment {
	case "development":
		return logrus.DebugLevel
	case "test":
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

// FromContext attaches the request id and trace ids found in ctx.
func FromContext(ctx context.Context, base logrus.FieldLogger) logrus.FieldLogger {
	fields := logrus.Fields{}

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		fields["request_id"] = reqID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}

	if len(fields) == 0 {
		return base
	}
	return base.WithFields(fields)
}
