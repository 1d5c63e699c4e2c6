package markdown

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/allyant/audit-reporter/internal/types"
)

//go:embed categories.schema.json
var categoriesSchema []byte

// UnexpectedShapeError indicates the model output did not parse into the
// category structure the document filler requires. The text is untrusted;
// we fail closed instead of producing a partial document.
type UnexpectedShapeError struct {
	Problems []string
}

func (e *UnexpectedShapeError) Error() string {
	return fmt.Sprintf("unexpected response shape: %s", strings.Join(e.Problems, "; "))
}

// ValidateCategories checks the parsed categories against the embedded
// JSON Schema. Returns an *UnexpectedShapeError listing every violation.
func ValidateCategories(categories []types.Category) error {
	doc, err := json.Marshal(categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(categoriesSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed to run: %w", err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return &UnexpectedShapeError{Problems: problems}
	}

	return nil
}
