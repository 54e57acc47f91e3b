package model

import (
	"bytes"
	"time"
)

// DisplayTimeLayout is the layout admin listings use for timestamps.
const DisplayTimeLayout = "2006-01-02 15:04:05"

// LocalTime renders as "YYYY-MM-DD HH:MM:SS" in the server's local zone.
type LocalTime time.Time

// MarshalJSON writes the display layout; the zero time becomes null.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	tt := time.Time(t)
	if tt.IsZero() {
		return []byte("null"), nil
	}
	buf := make([]byte, 0, len(DisplayTimeLayout)+2)
	buf = append(buf, '"')
	buf = tt.Local().AppendFormat(buf, DisplayTimeLayout)
	return append(buf, '"'), nil
}

// UnmarshalJSON accepts the display layout, RFC 3339 or null.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = LocalTime(time.Time{})
		return nil
	}
	s := string(bytes.Trim(data, `"`))
	parsed, err := time.ParseInLocation(DisplayTimeLayout, s, time.Local)
	if err != nil {
		if parsed, err = time.Parse(time.RFC3339, s); err != nil {
			return err
		}
	}
	*t = LocalTime(parsed)
	return nil
}

func (t LocalTime) String() string {
	return time.Time(t).Local().Format(DisplayTimeLayout)
}
