package util

import (
	"syscall"
	"time"
)

// SQLTimeLayout is the text format of timestamps stored in SQLite, compatible with CURRENT_TIMESTAMP
const SQLTimeLayout = "2006-01-02 15:04:05.000000"

// FormatSQLTime formats the time in UTC by SQLTimeLayout
func FormatSQLTime(tm time.Time) string {
	return tm.UTC().Format(SQLTimeLayout)
}

// ParseSQLTime parses a UTC timestamp from SQLite, with or without fractional seconds
func ParseSQLTime(text string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04:05", text, time.UTC)
}

// TimeFromTimeval creates a Time structure from syscall.Timeval
func TimeFromTimeval(val syscall.Timeval) time.Time {
	return time.Unix(val.Unix())
}

// TimeToUnixFloat creates Unix epoch seconds from a Time structure, as used by Splunk HEC
func TimeToUnixFloat(tm time.Time) float64 {
	return float64(tm.UnixNano()) / float64(time.Second)
}
