package logger

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names for structured logging.
const (
	FieldIdentity     = "identity"
	FieldQID          = "qid"
	FieldField        = "field"
	FieldDay          = "day"
	FieldKind         = "kind"
	FieldStatus       = "status"
	FieldState        = "state"
	FieldError        = "error"
	FieldKey          = "key"
	FieldSubmissionID = "submission_id"
	FieldCount        = "count"
	FieldPath         = "path"
	FieldMethod       = "method"
	FieldDurationMS   = "duration_ms"
	FieldComponent    = "component"
)

// New builds a sugared logger. JSON selects the production encoder,
// otherwise a console encoder is used.
func New(level string, json bool) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	var cfg zap.Config
	if json {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build logger")
	}
	return l.Sugar(), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l == nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Named returns a child logger tagged with a component name.
func Named(l *zap.SugaredLogger, component string) *zap.SugaredLogger {
	return OrNop(l).Named(component).With(FieldComponent, component)
}
