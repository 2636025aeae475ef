package db

import (
	"strconv"
	"strings"
)

const defaultStatementTimeoutMs = 30000

// AugmentDSNWithTimeout appends a statement_timeout to dsn unless one is set.
// Both URL and key=value DSNs are handled.
func AugmentDSNWithTimeout(dsn string, timeoutMs int) string {
	if dsn == "" || strings.Contains(dsn, "statement_timeout") {
		return dsn
	}
	if timeoutMs <= 0 {
		timeoutMs = defaultStatementTimeoutMs
	}
	param := "statement_timeout=" + strconv.Itoa(timeoutMs)

	if strings.HasPrefix(dsn, "postgresql://") || strings.HasPrefix(dsn, "postgres://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&" + param
		}
		return dsn + "?" + param
	}
	return dsn + " " + param
}
