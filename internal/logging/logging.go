// Package logging provides structured logging configuration.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration options.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|console
	// File, when set, sends output to a size-rotated file instead of stderr.
	File string
}

// New creates a new configured zap logger.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
			return nil, err
		}
	}

	format := strings.ToLower(cfg.Format)
	if format == "" {
		format = "json"
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var opts []zap.Option
	opts = append(opts, zap.AddCaller())
	if cfg.File != "" {
		opts = append(opts, zap.WrapCore(func(zapcore.Core) zapcore.Core {
			return fileCore(zcfg, cfg.File)
		}))
	}

	logger, err := zcfg.Build(opts...)
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("service", "replaycache")), nil
}

func fileCore(zcfg zap.Config, path string) zapcore.Core {
	var enc zapcore.Encoder
	if zcfg.Encoding == "console" {
		enc = zapcore.NewConsoleEncoder(zcfg.EncoderConfig)
	} else {
		enc = zapcore.NewJSONEncoder(zcfg.EncoderConfig)
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
	})
	return zapcore.NewCore(enc, w, zcfg.Level)
}

// Sync flushes any buffered log entries.
func Sync(logger *zap.Logger) {
	_ = logger.Sync()
}

// FromEnv creates a Config from environment variables.
func FromEnv() Config {
	return Config{
		Level:  getenv("REPLAYCACHE_LOG_LEVEL", "info"),
		Format: getenv("REPLAYCACHE_LOG_FORMAT", "json"),
		File:   os.Getenv("REPLAYCACHE_LOG_FILE"),
	}
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// Component returns a zap field for the component name.
func Component(name string) zap.Field { return zap.String("component", name) }

// Mode returns a zap field for a session mode.
func Mode(mode string) zap.Field { return zap.String("mode", mode) }

// Path returns a zap field for a file system path.
func Path(path string) zap.Field { return zap.String("path", path) }

// Hash returns a zap field for a request fingerprint hash.
func Hash(hash string) zap.Field { return zap.String("hash", hash) }

// Occurrence returns a zap field for a fingerprint occurrence.
func Occurrence(n int) zap.Field { return zap.Int("occurrence", n) }

// URL returns a zap field for a request URL.
func URL(url string) zap.Field { return zap.String("url", url) }

// Method returns a zap field for an HTTP method.
func Method(method string) zap.Field { return zap.String("method", method) }

// Status returns a zap field for an HTTP status code.
func Status(code int) zap.Field { return zap.Int("status", code) }

// TxnID returns a zap field for an in-flight transaction identifier.
func TxnID(id string) zap.Field { return zap.String("txn_id", id) }

// RequestID returns a zap field for a stored request row ID.
func RequestID(id int64) zap.Field { return zap.Int64("request_id", id) }
