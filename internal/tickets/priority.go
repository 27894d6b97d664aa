// internal/tickets/priority.go
package tickets

import (
	"fmt"
	"strings"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Priorities lists the valid labels from least to most severe.
var Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// prioritySynonyms maps user-facing spellings (staff teams answer in
// several languages) onto canonical labels.
var prioritySynonyms = map[string]string{
	"low":          PriorityLow,
	"basse":        PriorityLow,
	"faible":       PriorityLow,
	"baja":         PriorityLow,
	"medium":       PriorityMedium,
	"normal":       PriorityMedium,
	"moyenne":      PriorityMedium,
	"media":        PriorityMedium,
	"high":         PriorityHigh,
	"haute":        PriorityHigh,
	"elevee":       PriorityHigh,
	"alta":         PriorityHigh,
	"urgent":       PriorityUrgent,
	"urgente":      PriorityUrgent,
	"prioritaire":  PriorityUrgent,
	"critical":     PriorityUrgent,
	"critique":     PriorityUrgent,
}

// NormalizePriority resolves a raw label or synonym to a canonical
// priority, rejecting anything it does not recognize.
func NormalizePriority(input string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	if p, ok := prioritySynonyms[key]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown priority %q (expected one of: %s)",
		input, strings.Join(Priorities, ", "))
}

func IsValidPriority(label string) bool {
	for _, p := range Priorities {
		if p == label {
			return true
		}
	}
	return false
}
