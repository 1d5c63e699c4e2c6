package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allyant/audit-reporter/internal/types"
)

func validCategories() []types.Category {
	return []types.Category{
		{
			Title: "Keyboard Accessibility",
			Issues: []types.Issue{
				{Description: "- **#101**: Dropdown cannot be opened.", Link: "https://example.com/101"},
			},
		},
	}
}

func TestValidateCategories(t *testing.T) {
	assert.NoError(t, ValidateCategories(validCategories()))
}

func TestValidateCategoriesEmptyList(t *testing.T) {
	err := ValidateCategories([]types.Category{})

	var shapeErr *UnexpectedShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.NotEmpty(t, shapeErr.Problems)
}

func TestValidateCategoriesEmptyTitle(t *testing.T) {
	categories := validCategories()
	categories[0].Title = ""

	var shapeErr *UnexpectedShapeError
	assert.ErrorAs(t, ValidateCategories(categories), &shapeErr)
}

func TestValidateCategoriesEmptyDescription(t *testing.T) {
	categories := validCategories()
	categories[0].Issues[0].Description = ""

	var shapeErr *UnexpectedShapeError
	assert.ErrorAs(t, ValidateCategories(categories), &shapeErr)
}

func TestValidateCategoriesNilIssues(t *testing.T) {
	// A heading with no bullets parses to a nil issue list, which is not a
	// renderable category.
	err := ValidateCategories([]types.Category{{Title: "Lonely"}})

	var shapeErr *UnexpectedShapeError
	assert.ErrorAs(t, err, &shapeErr)
}

func TestValidateCategoriesSentinelText(t *testing.T) {
	// The full parse-then-validate path rejects the no-response sentinel.
	categories := ParseCategories("No valid response from model.")
	assert.Error(t, ValidateCategories(categories))
}
