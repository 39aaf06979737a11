package sqlutil

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Helper functions for converting between Go types and pgtype values

// ToText converts a Go string to pgtype.Text, mapping "" to NULL
func ToText(val string) pgtype.Text {
	if val == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: val, Valid: true}
}

// ToTimestamptz converts a Go time to pgtype.Timestamptz, mapping the zero
// time to NULL
func ToTimestamptz(val time.Time) pgtype.Timestamptz {
	if val.IsZero() {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: val, Valid: true}
}

// FromText converts pgtype.Text to Go string with default
func FromText(val pgtype.Text, defaultVal string) string {
	if !val.Valid {
		return defaultVal
	}
	return val.String
}
