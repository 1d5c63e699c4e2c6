// Package markdown parses the model's markdown report text into
// structured categories.
package markdown

import (
	"regexp"
	"strings"

	"github.com/allyant/audit-reporter/internal/types"
)

// Markers the model is instructed to emit. The parser treats anything
// else as noise.
const (
	headingMarker = "### "
	bulletMarker  = "- **#"
)

// linkPattern matches the fixed "[Link](URL)" form the prompts request.
var linkPattern = regexp.MustCompile(`\[Link\]\((.*?)\)`)

// ParseCategories splits the model's markdown into ordered categories.
// A heading line opens a new category; a bullet line appends one issue to
// the open category, with its link extracted and stripped from the stored
// description. Bullets before any heading are dropped. Category and issue
// order follow source order.
func ParseCategories(text string) []types.Category {
	var categories []types.Category
	var current *types.Category

	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, headingMarker):
			if current != nil {
				categories = append(categories, *current)
			}
			current = &types.Category{
				Title: strings.TrimSpace(line[len(headingMarker):]),
			}
		case strings.HasPrefix(line, bulletMarker):
			if current == nil {
				continue
			}
			link := ""
			if m := linkPattern.FindStringSubmatch(line); m != nil {
				link = m[1]
			}
			description := strings.TrimSpace(linkPattern.ReplaceAllString(line, ""))
			current.Issues = append(current.Issues, types.Issue{
				Description: description,
				Link:        link,
			})
		}
	}

	if current != nil {
		categories = append(categories, *current)
	}

	return categories
}
