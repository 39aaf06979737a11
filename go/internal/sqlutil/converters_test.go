package sqlutil

import (
	"testing"
	"time"
)

func TestToTextMapsEmptyToNull(t *testing.T) {
	if got := ToText(""); got.Valid {
		t.Fatalf("ToText(\"\") should be NULL, got %+v", got)
	}
	got := ToText("Ada")
	if !got.Valid || got.String != "Ada" {
		t.Fatalf("ToText(Ada) = %+v", got)
	}
	if FromText(ToText(""), "anon") != "anon" {
		t.Fatalf("FromText should fall back to default for NULL")
	}
}

func TestToTimestamptz(t *testing.T) {
	if ToTimestamptz(time.Time{}).Valid {
		t.Fatalf("zero time should be NULL")
	}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := ToTimestamptz(now)
	if !got.Valid || !got.Time.Equal(now) {
		t.Fatalf("ToTimestamptz = %+v", got)
	}
}
