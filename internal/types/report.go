// Package types defines the shared data structures for the audit report pipeline.
package types

// ToolType selects which report generator a request targets.
type ToolType string

// Supported tool types.
const (
	// ToolSummary produces the top-three-categories audit summary report.
	ToolSummary ToolType = "summary"
	// ToolVPAT produces the WCAG criterion support assessment.
	ToolVPAT ToolType = "vpat"
)

// Valid reports whether t is a known tool type.
func (t ToolType) Valid() bool {
	return t == ToolSummary || t == ToolVPAT
}

// Priority is the severity assigned to an audit issue by the tracker.
type Priority string

// Known priority levels. The tracker may emit others; they pass through untouched.
const (
	PriorityCritical Priority = "Critical"
	PrioritySerious  Priority = "Serious"
	PriorityWarning  Priority = "Warning"
)

// IssueRow is one normalized row from an uploaded audit CSV.
// JSON keys mirror the tracker's column names because serialized rows are
// sent verbatim to the model backend, and the prompts reference them.
// Rows are immutable once parsed.
type IssueRow struct {
	HubID       string   `json:"HUB ID"`
	Location    string   `json:"Location"`
	Name        string   `json:"Name"`
	Sitewide    bool     `json:"Sitewide?"`
	Component   string   `json:"Component"`
	Description string   `json:"Description of item/issue"`
	Priority    Priority `json:"Priority"`
	IssueLink   string   `json:"Issue Link"`
	Status      string   `json:"Allyant Status"`
}

// Issue is a single issue example extracted from the model's markdown.
type Issue struct {
	Description string `json:"description"`
	Link        string `json:"link"`
}

// Category groups issues under a model-chosen improvement theme.
// Issues preserve the order they appeared in the model output.
type Category struct {
	Title  string  `json:"title"`
	Issues []Issue `json:"issues"`
}

// ReportContext carries everything document generation needs for one user.
// It is assembled across requests in the report-context store and deleted
// once the document has been produced.
type ReportContext struct {
	ClientName            string   `json:"clientName"`
	Platform              string   `json:"platform"`
	ProjectURL            string   `json:"projectUrl"`
	NumViews              int      `json:"numViews"`
	NumIssues             int      `json:"numIssues"`
	GPTResponse           string   `json:"gptResponse"`
	ToolType              ToolType `json:"toolType"`
	ProjectIssueReportURL string   `json:"projectIssueReportURL,omitempty"`
}

// StoreDocumentDataRequest is the body of POST /store-document-data.
type StoreDocumentDataRequest struct {
	ClientName  string `json:"clientName" validate:"required"`
	Platform    string `json:"platform"`
	ProjectURL  string `json:"projectUrl"`
	NumViews    int    `json:"numViews" validate:"min=0"`
	NumIssues   int    `json:"numIssues" validate:"min=0"`
	GPTResponse string `json:"gptResponse" validate:"required"`
	ToolType    string `json:"toolType" validate:"omitempty,oneof=summary vpat"`
}

// UploadResponse is the success body of the upload endpoints.
type UploadResponse struct {
	Message     string `json:"message"`
	GPTResponse string `json:"gptResponse"`
}
