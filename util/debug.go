package util

import (
	"runtime/debug"
)

// Stack returns current stack trace as string, for BUG reports in logs
func Stack() string {
	return string(debug.Stack())
}
