package templating

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	docx "github.com/lukasjarosch/go-docx"
	"go.uber.org/zap"

	"github.com/allyant/audit-reporter/internal/types"
)

// The template references three category slots with up to three example
// issues each. Slots without data render as empty strings.
const (
	maxCategories        = 3
	maxIssuesPerCategory = 3
)

// ReportData is the complete input to template filling.
type ReportData struct {
	ClientName string
	Domain     string
	IssueCount int
	ViewCount  int
	Categories []types.Category
}

// Filler renders the audit summary DOCX template.
type Filler struct {
	templatePath string
	outputDir    string
	log          *zap.Logger
}

// NewFiller creates a Filler for the given template and output directory.
func NewFiller(templatePath, outputDir string, log *zap.Logger) *Filler {
	return &Filler{
		templatePath: templatePath,
		outputDir:    outputDir,
		log:          log,
	}
}

// Fill substitutes the report placeholders into the template and writes a
// new document named after the client and the current date. It returns
// the path of the generated file. Previous outputs are left in place.
func (f *Filler) Fill(data ReportData) (string, error) {
	doc, err := docx.Open(f.templatePath)
	if err != nil {
		return "", &TemplateError{
			Message: fmt.Sprintf("failed to open template %s", f.templatePath),
			Cause:   err,
		}
	}
	defer doc.Close()

	placeholders := BuildPlaceholders(data, time.Now())

	if err := doc.ReplaceAll(placeholders); err != nil {
		// A placeholder/data mismatch is a template bug; log the full
		// detail before propagating.
		f.log.Error("document rendering failed",
			zap.String("template", f.templatePath),
			zap.String("client", data.ClientName),
			zap.Error(err))
		return "", &TemplateError{Message: "failed to render document", Cause: err}
	}

	if err := os.MkdirAll(f.outputDir, 0o755); err != nil {
		return "", &OutputError{Path: f.outputDir, Cause: err}
	}

	outPath := filepath.Join(f.outputDir, outputFileName(data.ClientName, time.Now()))
	if err := doc.WriteToFile(outPath); err != nil {
		return "", &OutputError{Path: outPath, Cause: err}
	}

	f.log.Info("report document generated",
		zap.String("path", outPath),
		zap.Int("categories", len(data.Categories)))
	return outPath, nil
}

// BuildPlaceholders maps report data onto the template's named
// placeholders. Missing categories or issues map to empty values rather
// than failing, so a short report still renders.
func BuildPlaceholders(data ReportData, now time.Time) docx.PlaceholderMap {
	placeholders := docx.PlaceholderMap{
		"client":        data.ClientName,
		"domain":        data.Domain,
		"proposal date": now.Format("1/2/2006"),
		"x":             fmt.Sprintf("%d", data.IssueCount),
		"y":             fmt.Sprintf("%d", data.ViewCount),
	}

	for i := 0; i < maxCategories; i++ {
		placeholders[conceptKey(i)] = categoryTitle(data.Categories, i)
		for j := 0; j < maxIssuesPerCategory; j++ {
			key := fmt.Sprintf("Example issue %d.%d", i+1, j+1)
			placeholders[key] = issueText(data.Categories, i, j)
		}
	}

	return placeholders
}

// conceptKey returns the template's category-title placeholder. The
// production template names the third slot "Concept of ISSUE #3",
// singular, unlike the first two.
func conceptKey(i int) string {
	if i == 2 {
		return "Concept of ISSUE #3"
	}
	return fmt.Sprintf("Concept of ISSUES #%d", i+1)
}

func categoryTitle(categories []types.Category, i int) string {
	if i >= len(categories) {
		return ""
	}
	return categories[i].Title
}

// issueText formats one example issue as "description [Link](url)".
func issueText(categories []types.Category, i, j int) string {
	if i >= len(categories) || j >= len(categories[i].Issues) {
		return ""
	}
	issue := categories[i].Issues[j]
	if issue.Link == "" {
		return issue.Description
	}
	return fmt.Sprintf("%s [Link](%s)", issue.Description, issue.Link)
}

// outputFileName keys the generated file by client name and date.
func outputFileName(clientName string, now time.Time) string {
	return fmt.Sprintf("AuditSummaryReport-%s-%s.docx", clientName, now.Format("2006-01-02"))
}
