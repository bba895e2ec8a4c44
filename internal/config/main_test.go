package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// adds our test values to the defaults map
func init() {
	defaultValues["_TEST_INT_VALUE"] = 10
	defaultValues["_TEST_STR_VALUE"] = "AAA"
	defaultValues["_TEST_BOOL_VALUE"] = false
	defaultValues["_TEST_DURATION_VALUE"] = "5s"
}

func TestString(t *testing.T) {
	t.Setenv("_TEST_STR_VALUE", "hello")
	assert.Equal(t, "hello", StringValue("_TEST_STR_VALUE"))
	assert.Equal(t, "", StringValue("_TEST_UNKNOWN_KEY"))
}

func TestStringDefault(t *testing.T) {
	assert.Equal(t, "AAA", StringValue("_TEST_STR_VALUE"))
	assert.Equal(t, "default-server", StringValue("MSS_SERVER_NAME"))
}

func TestInt(t *testing.T) {
	assert.Equal(t, 10, IntValue("_TEST_INT_VALUE"))

	t.Setenv("_TEST_INT_VALUE", "42")
	assert.Equal(t, 42, IntValue("_TEST_INT_VALUE"))

	// not a number, default wins
	t.Setenv("_TEST_INT_VALUE", "forty-two")
	assert.Equal(t, 10, IntValue("_TEST_INT_VALUE"))
}

func TestBool(t *testing.T) {
	assert.False(t, BoolValue("_TEST_BOOL_VALUE"))

	t.Setenv("_TEST_BOOL_VALUE", "true")
	assert.True(t, BoolValue("_TEST_BOOL_VALUE"))

	t.Setenv("_TEST_BOOL_VALUE", "maybe")
	assert.False(t, BoolValue("_TEST_BOOL_VALUE"))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, DurationValue("_TEST_DURATION_VALUE"))

	t.Setenv("_TEST_DURATION_VALUE", "250ms")
	assert.Equal(t, 250*time.Millisecond, DurationValue("_TEST_DURATION_VALUE"))

	t.Setenv("_TEST_DURATION_VALUE", "soon")
	assert.Equal(t, 5*time.Second, DurationValue("_TEST_DURATION_VALUE"))

	assert.Equal(t, 300*time.Second, DurationValue("MSS_SYNC_INTERVAL"))
	assert.Equal(t, time.Duration(0), DurationValue("_TEST_UNKNOWN_KEY"))
}
