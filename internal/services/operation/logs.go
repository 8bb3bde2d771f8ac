package operation

import (
	"regexp"
	"sort"
	"strings"

	"claygrounds-desktop/internal/models"
)

var (
	currentVenuePatterns = []*regexp.Regexp{
		regexp.MustCompile(`Processing bookings for: (.+?)(?:\s*\(|$)`),
		regexp.MustCompile(`Processing venue: (.+?)(?:\s*\(|$)`),
	}

	outcomeNamePatterns = []*regexp.Regexp{
		regexp.MustCompile(`for: ([^(]+)`),
		regexp.MustCompile(`for ([^(]+)`),
		regexp.MustCompile(`venue: ([^(]+)`),
		regexp.MustCompile(`Processing ([^(]+) (?:completed|failed)`),
	}
)

// CurrentVenue returns the venue named by the most recent "processing" log
// line, or "" when none matches
func CurrentVenue(logs []models.LogEntry) string {
	for i := len(logs) - 1; i >= 0; i-- {
		msg := logs[i].Message
		if !strings.Contains(msg, "Processing bookings for:") && !strings.Contains(msg, "Processing venue:") {
			continue
		}
		for _, re := range currentVenuePatterns {
			if m := re.FindStringSubmatch(msg); m != nil {
				return strings.TrimSpace(m[1])
			}
		}
		return ""
	}
	return ""
}

// ProcessedVenues recovers per-venue outcomes from log lines. Each venue is
// reported once, at its first outcome, ordered by log timestamp.
func ProcessedVenues(logs []models.LogEntry) []ProcessedVenue {
	var out []ProcessedVenue
	seen := make(map[string]bool)

	for _, l := range logs {
		status := outcomeOf(l.Message)
		if status == "" {
			continue
		}
		name := outcomeName(l.Message)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, ProcessedVenue{Name: name, Status: status, Timestamp: l.Timestamp})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// ProcessedVenueNames is ProcessedVenues reduced to names
func ProcessedVenueNames(logs []models.LogEntry) []string {
	venues := ProcessedVenues(logs)
	names := make([]string, 0, len(venues))
	for _, v := range venues {
		names = append(names, v.Name)
	}
	return names
}

func outcomeOf(msg string) string {
	switch {
	case strings.Contains(msg, "File processed successfully:"):
		return "success"
	case strings.Contains(msg, "Failed to process"), strings.Contains(msg, "Error processing"):
		return "failed"
	}
	return ""
}

func outcomeName(msg string) string {
	for _, re := range outcomeNamePatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}
