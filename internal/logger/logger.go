package logger

import (
	"errors"
	"os"
	"sort"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with additional functionality
type Logger struct {
	*zap.Logger
}

// Config contains logger configuration
type Config struct {
	Level  string
	Format string // json or console
	File   *FileConfig
}

// FileConfig contains file logging configuration
type FileConfig struct {
	Enabled bool
	Path    string
}

// New creates a new logger instance
func New(config Config) (*Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}

	var encoderConfig zapcore.EncoderConfig
	if config.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	var encoder zapcore.Encoder
	if config.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	// Logs go to stderr so stdout stays clean for command output
	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(consoleSink{os.Stderr}), level),
	}

	if config.File != nil && config.File.Enabled {
		file, err := os.OpenFile(config.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}

		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(file),
			level,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{Logger: logger}, nil
}

// consoleSink is stderr for the console core. fsync on a terminal or pipe
// fails with EINVAL or ENOTTY even though nothing was lost.
type consoleSink struct {
	*os.File
}

func (s consoleSink) Sync() error {
	err := s.File.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// NewNop returns a logger that discards everything. Used by tests and
// library callers that do not care about engine logs.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// WithComponent adds a component name to the logger context
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", component))}
}

// WithProject adds a project ID to the logger context
func (l *Logger) WithProject(projectID string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("project_id", projectID))}
}

// LogDetectionSummary logs the outcome of a detection-bearing operation.
// Only kinds and counts are logged; matched text never reaches the log.
func (l *Logger) LogDetectionSummary(operation string, textBytes int, kindCounts map[string]int, warnings []string) {
	kinds := make([]string, 0, len(kindCounts))
	total := 0
	for kind, n := range kindCounts {
		kinds = append(kinds, kind)
		total += n
	}
	sort.Strings(kinds)

	fields := []zap.Field{
		zap.String("operation", operation),
		zap.Int("text_bytes", textBytes),
		zap.Int("detections", total),
		zap.Strings("kinds", kinds),
	}
	if len(warnings) > 0 {
		fields = append(fields, zap.Strings("warnings", warnings))
	}

	l.Debug("Detection summary", fields...)
}
