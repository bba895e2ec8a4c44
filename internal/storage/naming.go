package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// TablePrefix namespaces metric tables away from anything else in the schema.
	TablePrefix = "mss_"

	// RegistryTable holds the names of every tracked metric.
	RegistryTable = "mss_synced_placeholders"

	// MigrationsTable records which base schema versions have been applied.
	MigrationsTable = "mss_schema_migrations"

	// MaxStoredDigits bounds the integers a sum accepts, so that adding up
	// any realistic number of node columns stays inside int64.
	MaxStoredDigits = 15

	KeyColumn  = "player_uuid"
	NameColumn = "player_name"

	// decorative wrapper around raw metric names, e.g. %player_kills%
	wrapperChar = "%"
)

var (
	ErrInvalidNodeName     = errors.New("invalid node name")
	ErrEmptyMetricName     = errors.New("empty metric name")
	ErrMissingRelation     = errors.New("table or column does not exist")
	ErrUnknownDriver       = errors.New("unknown database driver")
	ErrPersistenceDisabled = errors.New("persistence not enabled")

	unsafeChars   = regexp.MustCompile(`[^A-Za-z0-9_]`)
	nodeNameRe    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	storedValueRe = regexp.MustCompile(`^-?[0-9]{1,15}$`)
)

// CleanName strips the decorative wrapper characters from a raw metric name.
func CleanName(raw string) string {
	return strings.ReplaceAll(raw, wrapperChar, "")
}

// TableName derives the storage identifier of a metric. It is pure: the same
// raw name always yields the same table.
func TableName(raw string) string {
	return TablePrefix + unsafeChars.ReplaceAllString(CleanName(raw), "_")
}

// ValidateNodeName checks that name can be used as a value column.
func ValidateNodeName(name string) error {
	if !nodeNameRe.MatchString(name) {
		return fmt.Errorf("%w: %q must match [A-Za-z0-9_-]+", ErrInvalidNodeName, name)
	}
	if isReservedColumn(name) {
		return fmt.Errorf("%w: %q is a reserved column", ErrInvalidNodeName, name)
	}
	return nil
}

func isReservedColumn(name string) bool {
	return strings.EqualFold(name, KeyColumn) || strings.EqualFold(name, NameColumn)
}

// ParseStoredValue converts a stored node value to an integer. Anything that
// is not a plain integer of at most MaxStoredDigits digits aggregates as zero.
func ParseStoredValue(v string) int64 {
	if !storedValueRe.MatchString(v) {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
