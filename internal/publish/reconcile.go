package publish

import (
	"github.com/temirov/tabmigrate/internal/content"
)

// HiddenViews returns the target views, in target order, whose names are absent from the views
// that were visible on the source.
func HiddenViews(targetViews []content.View, visibleViews []string) []string {
	visible := make(map[string]struct{}, len(visibleViews))
	for _, viewName := range visibleViews {
		visible[viewName] = struct{}{}
	}

	var hidden []string
	seen := make(map[string]struct{}, len(targetViews))
	for _, view := range targetViews {
		if _, keep := visible[view.Name]; keep {
			continue
		}
		if _, duplicate := seen[view.Name]; duplicate {
			continue
		}
		seen[view.Name] = struct{}{}
		hidden = append(hidden, view.Name)
	}
	return hidden
}
