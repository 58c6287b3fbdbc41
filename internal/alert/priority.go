package alert

import (
	"strings"

	"github.com/your-org/presence/internal/models"
)

// unknownPersonHighMatch is the match confidence above which an unknown face
// is treated as a likely near-miss of a known identity.
const unknownPersonHighMatch = 0.7

var highPriorityKeywords = []string{
	"emergency",
	"urgent",
	"critical",
	"security",
	"unauthorized",
	"multiple",
	"extended absence",
	"system failure",
}

var mediumPriorityKeywords = []string{
	"unknown person",
	"not detected",
	"camera",
	"connection",
}

// absencePriority returns the priority for an absence of the given length, or
// false when the absence is below the alert threshold.
func absencePriority(hours float64, s models.AlertSettings) (models.Priority, bool) {
	switch {
	case hours >= s.HighPriorityHours:
		return models.PriorityHigh, true
	case hours >= s.AbsenceHours:
		return models.PriorityMedium, true
	default:
		return "", false
	}
}

func unknownPersonPriority(matchConfidence float32) models.Priority {
	if matchConfidence > unknownPersonHighMatch {
		return models.PriorityMedium
	}
	return models.PriorityLow
}

// textPriority classifies free-text alerts by keyword, high keywords first.
func textPriority(title, description string) models.Priority {
	text := strings.ToLower(title + " " + description)
	for _, kw := range highPriorityKeywords {
		if strings.Contains(text, kw) {
			return models.PriorityHigh
		}
	}
	for _, kw := range mediumPriorityKeywords {
		if strings.Contains(text, kw) {
			return models.PriorityMedium
		}
	}
	return models.PriorityLow
}

func priorityRank(p models.Priority) int {
	switch p {
	case models.PriorityHigh:
		return 3
	case models.PriorityMedium:
		return 2
	case models.PriorityLow:
		return 1
	}
	return 0
}
