package query

import (
	"strconv"
	"strings"

	"visionctl/internal/model"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// StatusFilters lists the accepted status filter values in display order.
func StatusFilters() []string {
	return []string{
		StatusAll,
		string(model.StatusTraining),
		string(model.StatusTrained),
		string(model.StatusFailed),
	}
}

// Filter returns the models matching searchTerm and statusFilter, keeping
// the input order. An empty searchTerm matches every model; an empty
// statusFilter behaves like StatusAll.
func Filter(models []model.Model, searchTerm, statusFilter string) []model.Model {
	out := make([]model.Model, 0, len(models))
	needle := strings.ToLower(searchTerm)
	for _, m := range models {
		if !matchesStatus(m, statusFilter) {
			continue
		}
		if searchTerm != "" && !matchesSearch(m, needle) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func matchesStatus(m model.Model, statusFilter string) bool {
	if statusFilter == "" || statusFilter == StatusAll {
		return true
	}
	// absent status only passes "all"
	if m.Status == model.StatusUnknown {
		return false
	}
	return string(m.Status) == statusFilter
}

func matchesSearch(m model.Model, needle string) bool {
	if containsFold(m.Name, needle) || containsFold(m.Path, needle) || containsFold(m.Size, needle) {
		return true
	}
	for _, class := range m.Classes {
		if containsFold(class, needle) {
			return true
		}
	}
	return strings.Contains(strconv.FormatInt(m.ID, 10), needle)
}

func containsFold(field, lowerNeedle string) bool {
	return field != "" && strings.Contains(strings.ToLower(field), lowerNeedle)
}

// NextStatusFilter cycles through StatusFilters, used by the model browser.
func NextStatusFilter(current string) string {
	filters := StatusFilters()
	for i, f := range filters {
		if f == current {
			return filters[(i+1)%len(filters)]
		}
	}
	return StatusAll
}
