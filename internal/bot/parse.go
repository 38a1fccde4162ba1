package bot

import (
	"fmt"
	"strconv"
	"strings"

	"rss_watch/internal/scheduler"
)

// ParseURLArg returns the first argument of a command, or "" if there is none.
func ParseURLArg(args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ParseRecentArg parses the optional post count of /list.
// An empty argument yields the default; larger values are capped.
func ParseRecentArg(args string) (int, error) {
	s := ParseURLArg(args)
	if s == "" {
		return scheduler.DefaultRecent, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("usage: /list [n], where n is a number between 1 and %d", scheduler.MaxRecent)
	}
	return min(n, scheduler.MaxRecent), nil
}
