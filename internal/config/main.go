package config

import (
	"os"
	"strconv"
	"time"
)

var defaultValues = map[string]interface{}{
	// node identity and scheduling
	"MSS_SERVER_NAME":   "default-server", // column name owned by this node in every metric table
	"MSS_SYNC_INTERVAL": "300s",           // period between sync ticks
	"MSS_INITIAL_DELAY": "60s",            // delay before the first tick
	"MSS_SYNC_WORKERS":  8,                // concurrent fetch+upsert pairs per tick
	"MSS_SCHEDULER":     "global",         // global or affinity
	"MSS_HTTP_ADDR":     ":8099",
	"MSS_ADMIN_ADDR":    "127.0.0.1:8098", // admin endpoints, keep off public interfaces
	"MSS_VALUE_SOURCE":  "",               // base URL of the host process value source
	"MSS_LOG_LEVEL":     "info",
	"MSS_DEBUG":         false,

	// database
	"MSS_DB_DRIVER":            "mysql",
	"MSS_DB_DSN":               "",
	"MSS_DB_HOST":              "localhost",
	"MSS_DB_PORT":              3306,
	"MSS_DB_NAME":              "multisync",
	"MSS_DB_USER":              "root",
	"MSS_DB_PASSWORD":          "",
	"MSS_DB_USE_SSL":           false,
	"MSS_DB_MAX_OPEN_CONNS":    10,
	"MSS_DB_MAX_IDLE_CONNS":    5,
	"MSS_DB_CONN_MAX_LIFETIME": "30m",
	"MSS_DB_TIMEOUT":           "10s",
}

func StringValue(key string) string {
	if defaultValue, ok := defaultValues[key]; ok {
		return getEnvVar(key, defaultValue.(string)).(string)
	}
	return ""
}

// IntValue gets an int value from the env or default
func IntValue(key string) int {

	if defaultValue, ok := defaultValues[key]; ok {
		return getEnvVar(key, defaultValue.(int)).(int)
	}
	return 0
}

// BoolValue gets a bool value from the env or default
func BoolValue(key string) bool {

	if defaultValue, ok := defaultValues[key]; ok {
		return getEnvVar(key, defaultValue.(bool)).(bool)
	}
	return false
}

// DurationValue parses a duration from the env or default. An unparsable
// env value falls back to the default.
func DurationValue(key string) time.Duration {

	defaultValue, ok := defaultValues[key]
	if !ok {
		return 0
	}

	fallback, _ := time.ParseDuration(defaultValue.(string))
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnvVar(key string, fallback interface{}) interface{} {

	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	switch fallback.(type) {
	case string:
		return value
	case bool:
		valueAsBool, err := strconv.ParseBool(value)
		if err != nil {
			return fallback
		}
		return valueAsBool
	case int:
		valueAsInt, err := strconv.Atoi(value)
		if err != nil {
			return fallback
		}
		return valueAsInt
	}
	return fallback
}
