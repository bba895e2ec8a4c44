package config

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type (
	CorrelationContextKey   string
	DebugContextKey         string
	TimeCreatedContextKey   string
	CollectedLogsContextKey string
)

type CollectedLog struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	CID       string    `json:"correlation_id"`
	ElapsedMs float64   `json:"elapsed_ms"`
}

// logCollector is shared by every goroutine of a tick, so appends are locked.
type logCollector struct {
	mu   sync.Mutex
	logs []CollectedLog
}

const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func SetContextCorrelationId(ctx context.Context, value string) context.Context {

	id := make([]byte, 8)
	for idx := range 8 {
		n := rand.Intn(len(chars))
		id[idx] = chars[n]
	}

	newctx := context.WithValue(ctx, CorrelationContextKey("cid"), fmt.Sprintf("%s-%s", string(id), value))

	// if the created time is unset then set it. test for -1 as 0 could be
	// a symptom of a default unset value
	t := GetContextTimeCreated(ctx)
	if t == -1 {
		newctx = context.WithValue(
			newctx,
			TimeCreatedContextKey("timeCreated"),
			time.Now().Unix())
	}

	// a caller that forced debug keeps it
	newctx = context.WithValue(newctx, DebugContextKey("debug"), GetContextDebug(ctx) || BoolValue("MSS_DEBUG"))

	return newctx
}
func GetContextTimeCreated(ctx context.Context) int64 {

	key := TimeCreatedContextKey("timeCreated")

	if v := ctx.Value(key); v != nil {
		return v.(int64)
	}
	return -1
}
func AppendToContextCorrelationId(ctx context.Context, value string) context.Context {
	key := CorrelationContextKey("cid")
	id := GetContextCorrelationId(ctx)
	newctx := context.WithValue(ctx, key, id+"-"+value)
	return newctx
}
func GetContextCorrelationId(ctx context.Context) string {

	key := CorrelationContextKey("cid")

	if v := ctx.Value(key); v != nil {
		return v.(string)
	}

	return "no-id"
}

func GetContextDebug(ctx context.Context) bool {

	key := DebugContextKey("debug")

	if v := ctx.Value(key); v != nil {
		return v.(bool)
	}

	return false
}

// EnableDebug forces debug logging for everything derived from ctx.
func EnableDebug(ctx context.Context) context.Context {
	return context.WithValue(ctx, DebugContextKey("debug"), true)
}

// Log Collection Functions
func EnableLogCollection(ctx context.Context) context.Context {
	return context.WithValue(ctx, CollectedLogsContextKey("logs"), &logCollector{})
}

func IsLogCollectionEnabled(ctx context.Context) bool {
	_, ok := ctx.Value(CollectedLogsContextKey("logs")).(*logCollector)
	return ok
}

// CollectedLogs returns a copy of the logs gathered so far.
func CollectedLogs(ctx context.Context) []CollectedLog {
	c, ok := ctx.Value(CollectedLogsContextKey("logs")).(*logCollector)
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CollectedLog, len(c.logs))
	copy(out, c.logs)
	return out
}

func DumpLogsAsJSON(ctx context.Context) (string, error) {
	if !IsLogCollectionEnabled(ctx) {
		return "[]", nil
	}
	jsonData, err := json.Marshal(CollectedLogs(ctx))
	if err != nil {
		return "", err
	}
	return string(jsonData), nil
}

func collect(ctx context.Context, entry CollectedLog) {
	if c, ok := ctx.Value(CollectedLogsContextKey("logs")).(*logCollector); ok {
		c.mu.Lock()
		c.logs = append(c.logs, entry)
		c.mu.Unlock()
	}
}
