package main

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// humanizeLabel turns identifiers like "script_ready" or
// "outline-generation" into display labels.
func humanizeLabel(value string) string {
	cleaned := strings.NewReplacer("_", " ", "-", " ").Replace(strings.TrimSpace(value))
	if cleaned == "" {
		return ""
	}
	return titleCaser.String(cleaned)
}

func formatWait(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	d := time.Duration(seconds) * time.Second
	if d < time.Minute {
		return d.String()
	}
	return d.Round(time.Minute).String()
}

func truncate(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func formatPosition(position *int) string {
	if position == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *position)
}
