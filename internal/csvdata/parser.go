// Package csvdata normalizes uploaded audit CSV exports into issue rows.
package csvdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/allyant/audit-reporter/internal/types"
)

// Column names expected in tracker exports. Columns beyond this set are
// ignored; missing columns are treated as empty values.
const (
	ColHubID       = "HUB ID"
	ColLocation    = "Location"
	ColName        = "Name"
	ColSitewide    = "Sitewide?"
	ColComponent   = "Component"
	ColDescription = "Description of item/issue"
	ColPriority    = "Priority"
	ColIssueLink   = "Issue Link"
	ColStatus      = "Allyant Status"
)

// projectIssuePattern extracts the tracker project ID from an issue link.
var projectIssuePattern = regexp.MustCompile(`issues/(\d+)`)

// projectReportURLFormat is the tracker's project-level issue report page.
const projectReportURLFormat = "https://hub.accessible360.com/projects/%s/issues"

// Result holds the normalized rows from one upload.
type Result struct {
	Rows []types.IssueRow
	// ProjectReportURL is derived from the last issue link that embeds a
	// tracker project ID; empty when no link matched.
	ProjectReportURL string
	// Skipped counts rows dropped for missing required identifiers.
	Skipped int
}

// Parse reads a tracker CSV export and extracts the known columns per row.
// Rows missing HUB ID or Location are dropped rather than failing the
// whole upload.
func Parse(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return &Result{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	result := &Result{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		field := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		row := types.IssueRow{
			HubID:       field(ColHubID),
			Location:    field(ColLocation),
			Name:        field(ColName),
			Sitewide:    parseSitewide(field(ColSitewide)),
			Component:   field(ColComponent),
			Description: field(ColDescription),
			Priority:    types.Priority(field(ColPriority)),
			IssueLink:   field(ColIssueLink),
			Status:      field(ColStatus),
		}

		if row.HubID == "" || row.Location == "" {
			result.Skipped++
			continue
		}

		if m := projectIssuePattern.FindStringSubmatch(row.IssueLink); m != nil {
			result.ProjectReportURL = fmt.Sprintf(projectReportURLFormat, m[1])
		}

		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

// parseSitewide interprets the tracker's free-form Sitewide? column.
func parseSitewide(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "y", "true", "1", "x":
		return true
	default:
		return false
	}
}
