package period

import (
	"strings"
	"time"

	"carmen/internal/core/apperror"
)

// ParseDate accepts "2006-01-02" (midnight in loc) or RFC3339.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperror.NewInvalidArgument("invalid date, expected YYYY-MM-DD or RFC3339").
		WithDetail("value", s)
}
