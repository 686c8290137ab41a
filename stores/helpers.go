package stores

import (
	"time"

	"github.com/oarkflow/date"
)

func parseFlexibleTime(s string) (time.Time, error) {
	return date.Parse(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// scanTime converts whatever the driver hands back for a timestamp column.
// sqlite returns strings, some drivers return time.Time directly.
func scanTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, true
	case string:
		if t, err := parseFlexibleTime(v); err == nil {
			return t, true
		}
	case []byte:
		if t, err := parseFlexibleTime(string(v)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// scanTimePtr is scanTime for nullable columns.
func scanTimePtr(raw any) *time.Time {
	if raw == nil {
		return nil
	}
	if t, ok := scanTime(raw); ok {
		return &t
	}
	return nil
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
