package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/platinummonkey/eams/pkg/contextkeys"
	"github.com/platinummonkey/eams/pkg/rbac"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

var slogLevels = [...]slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return levelNames[InfoLevel]
	}
	return levelNames[l]
}

// ParseLogLevel maps a case-insensitive level name to a LogLevel, defaulting to InfoLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) slogLevel() slog.Level {
	if l < DebugLevel || l > ErrorLevel {
		return slog.LevelInfo
	}
	return slogLevels[l]
}

// Logger writes JSON lines through slog
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a logger writing to output, or stdout when output is nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{logger: slog.New(handler)}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With(key, value)}
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{logger: l.logger.With(args...)}
}

// WithError adds an error to the logger context
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// WithDecision tags an access decision with the check that made it
func (l *Logger) WithDecision(check string, allowed bool) *Logger {
	return &Logger{logger: l.logger.With("check", check, "allowed", allowed)}
}

func (l *Logger) Debug(message string) { l.logger.Debug(message) }

func (l *Logger) Info(message string) { l.logger.Info(message) }

func (l *Logger) Warn(message string) { l.logger.Warn(message) }

func (l *Logger) Error(message string) { l.logger.Error(message) }

type loggerKey struct{}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from context, or a stdout logger at info level
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return NewLogger(InfoLevel, os.Stdout)
}

// FromContext returns the context logger tagged with the request ID, the
// authenticated caller and the active trace
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	fields := traceFields(ctx)
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		fields["request_id"] = requestID
	}
	for k, v := range callerFields(contextkeys.GetUser(ctx)) {
		fields[k] = v
	}
	if len(fields) == 0 {
		return logger
	}
	return logger.WithFields(fields)
}

// callerFields names the caller, their user type and their company. The caller_
// prefix keeps them apart from the user a log line is about.
func callerFields(user *rbac.User) map[string]interface{} {
	if user == nil {
		return nil
	}
	fields := map[string]interface{}{"caller_id": user.ID}
	if role, ok := user.RoleID(); ok {
		fields["caller_type"] = string(role)
	} else {
		fields["caller_type"] = rbac.SchemeGrant
	}
	if company := user.AssignedCompanyID; company != "" {
		fields["caller_company_id"] = company
	}
	return fields
}
