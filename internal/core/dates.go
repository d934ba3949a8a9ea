package core

import (
	"fmt"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// ParseDateText parses "YYYY-MM-DD" into days since the Unix epoch.
func ParseDateText(s string) (int64, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid DATE literal %q: %w", s, err)
	}
	return t.Unix() / 86400, nil
}

// ParseDateTimeText parses "YYYY-MM-DD HH:MM:SS" into milliseconds
// since the Unix epoch.
func ParseDateTimeText(s string) (int64, error) {
	t, err := time.Parse(dateTimeLayout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid DATETIME literal %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}

// FormatDate renders a day count back into "YYYY-MM-DD".
func FormatDate(days int64) string {
	return time.Unix(days*86400, 0).UTC().Format(dateLayout)
}

// FormatDateTime renders a millisecond count back into
// "YYYY-MM-DD HH:MM:SS".
func FormatDateTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(dateTimeLayout)
}
