package shared

import (
	"fmt"
	"strings"
)

// LoginAttemptsKey builds the redis key holding failed logins for a caller address.
func LoginAttemptsKey(addr string) string {
	return fmt.Sprintf("auth:login:failures:%s", strings.ToLower(strings.TrimSpace(addr)))
}

// RefdataKey builds versioned cache keys for reference data listings.
func RefdataKey(version int64, parts ...string) string {
	return fmt.Sprintf("refdata:%s:v%d", strings.Join(parts, ":"), version)
}
