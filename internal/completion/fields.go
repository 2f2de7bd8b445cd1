package completion

import (
	"fmt"
	"strings"

	"github.com/kestrelsearch/kestrel/internal/query"
)

// fieldNameItems returns field-name completions whose primary alias
// starts with partial (case-insensitive). Applying one replaces the
// [start, end) range of the query with "alias:".
func fieldNameItems(partial string, start, end int) []Item {
	lower := strings.ToLower(partial)
	var items []Item
	for _, def := range query.Fields {
		name := def.Aliases[0] + ":"
		if !strings.HasPrefix(name, lower) {
			continue
		}
		items = append(items, Item{
			Label: fmt.Sprintf("%s - %s", name, def.Description),
			Replacement: Replacement{
				Start: start,
				End:   end,
				Text:  name,
			},
			Source: SourceKeyword,
		})
	}
	return items
}

// looksLikePath reports whether a partial term should also get
// filesystem completions.
func looksLikePath(text string) bool {
	return strings.HasPrefix(text, "~") || strings.Contains(text, "/")
}
