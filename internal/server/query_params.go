package server

import (
	"strconv"
	"strings"
)

// parseOptionalInt treats an absent value as zero so services can apply
// their own defaults.
func parseOptionalInt(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	return strconv.Atoi(trimmed)
}
