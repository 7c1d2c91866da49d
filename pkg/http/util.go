package http

import (
	"time"

	xutil "SwingPull/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseDayDefault parses YYYY-MM-DD or returns default if empty/invalid.
func ParseDayDefault(s string, def time.Time) time.Time { return xutil.ParseDayDefault(s, def) }
