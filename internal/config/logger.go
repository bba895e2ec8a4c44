package config

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var sink atomic.Pointer[zap.SugaredLogger]

// NewLogger builds the console logger used by the package level helpers.
// Unknown levels fall back to info.
func NewLogger(level string) *zap.SugaredLogger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true

	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Named("multisync").Sugar()
}

// SetLogger replaces the sink, e.g. with a level chosen on the command line.
func SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		sink.Store(l)
	}
}

// Public methods
func LogInfo(ctx context.Context, msg string) {
	writeToLog(ctx, "INFO", msg)
}

func LogWarn(ctx context.Context, msg string) {
	writeToLog(ctx, "WARN", msg)
}

func LogError(ctx context.Context, msg string) {
	writeToLog(ctx, "ERROR", msg)
}

func LogDebug(ctx context.Context, msg string) {
	writeToLog(ctx, "DEBUG", msg)
}

// Private methods
func writeToLog(ctx context.Context, severity string, msg string) {

	l := sink.Load()
	if l != nil {
		kv := []interface{}{"cid", GetContextCorrelationId(ctx), "elapsed", sinceCreated(ctx)}
		switch severity {
		case "ERROR":
			l.Errorw(msg, kv...)
		case "WARN":
			l.Warnw(msg, kv...)
		case "DEBUG":
			// debug lines are forced through when the context asks for them
			if GetContextDebug(ctx) {
				l.Infow(msg, append(kv, "debug", true)...)
			} else {
				l.Debugw(msg, kv...)
			}
		default:
			l.Infow(msg, kv...)
		}
	}

	// Additionally collect if enabled
	if IsLogCollectionEnabled(ctx) {
		createdTime := time.Unix(GetContextTimeCreated(ctx), 0)
		collect(ctx, CollectedLog{
			Timestamp: time.Now().UTC(),
			Severity:  severity,
			Message:   msg,
			CID:       GetContextCorrelationId(ctx),
			ElapsedMs: time.Since(createdTime).Seconds() * 1000,
		})
	}
}

func sinceCreated(ctx context.Context) string {

	created := GetContextTimeCreated(ctx)
	if created == -1 {
		return "0.0s"
	}
	t := time.Since(time.Unix(created, 0)).Seconds()

	return fmt.Sprintf("%.1fs", t)
}
