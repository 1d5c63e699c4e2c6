package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/allyant/audit-reporter/internal/llm"
	"github.com/allyant/audit-reporter/internal/report"
	"github.com/allyant/audit-reporter/internal/server/middleware"
	"github.com/allyant/audit-reporter/internal/store"
	"github.com/allyant/audit-reporter/internal/templating"
	"github.com/allyant/audit-reporter/internal/types"
)

// memStore is an in-memory contextStore with optimistic versioning.
type memStore struct {
	contexts map[string]*types.ReportContext
	versions map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		contexts: make(map[string]*types.ReportContext),
		versions: make(map[string]int64),
	}
}

func (m *memStore) Get(_ context.Context, ownerID string) (*types.ReportContext, int64, error) {
	rc, ok := m.contexts[ownerID]
	if !ok {
		return nil, 0, store.ErrNotFound
	}
	clone := *rc
	return &clone, m.versions[ownerID], nil
}

func (m *memStore) Put(_ context.Context, ownerID string, rc *types.ReportContext, expectedVersion int64) (int64, error) {
	actual := m.versions[ownerID]
	if actual != expectedVersion {
		return 0, &store.VersionConflictError{OwnerID: ownerID, Expected: expectedVersion, Actual: actual}
	}
	clone := *rc
	m.contexts[ownerID] = &clone
	m.versions[ownerID] = actual + 1
	return actual + 1, nil
}

func (m *memStore) Delete(_ context.Context, ownerID string) error {
	delete(m.contexts, ownerID)
	delete(m.versions, ownerID)
	return nil
}

// fakeGenerator returns a fixed response and records its input.
type fakeGenerator struct {
	text    string
	err     error
	gotRows []types.IssueRow
	gotTool types.ToolType
}

func (f *fakeGenerator) Generate(_ context.Context, rows []types.IssueRow, tool types.ToolType) (string, error) {
	f.gotRows = rows
	f.gotTool = tool
	return f.text, f.err
}

// fakeFiller writes a trivial file so the download path has something to
// serve.
type fakeFiller struct {
	dir     string
	err     error
	gotData templating.ReportData
}

func (f *fakeFiller) Fill(data templating.ReportData) (string, error) {
	f.gotData = data
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(f.dir, "AuditSummaryReport-Acme-2026-08-28.docx")
	if err := os.WriteFile(path, []byte("docx bytes"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func newTestServer(t *testing.T, gen *fakeGenerator, fill *fakeFiller) (*Server, *memStore) {
	t.Helper()
	contexts := newMemStore()
	return &Server{
		store:     contexts,
		generator: gen,
		filler:    fill,
		uploadDir: t.TempDir(),
		log:       zap.NewNop(),
	}, contexts
}

func multipartCSV(t *testing.T, csv string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "issues.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

const uploadCSV = "HUB ID,Location,Name,Sitewide?,Component,Description of item/issue,Priority,Issue Link,Allyant Status\n" +
	"101,Homepage,Missing alt text,Yes,Image,No alt attribute,Critical,https://hub.accessible360.com/projects/42/issues/101,Open\n"

func TestHandleUpload(t *testing.T) {
	gen := &fakeGenerator{text: "### Category\n- **#101**: issue. [Link](u)"}
	srv, contexts := newTestServer(t, gen, &fakeFiller{dir: t.TempDir()})

	body, contentType := multipartCSV(t, uploadCSV)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleUpload(rec, req, types.ToolSummary)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "File uploaded successfully.", resp.Message)
	assert.Equal(t, gen.text, resp.GPTResponse)

	assert.Equal(t, types.ToolSummary, gen.gotTool)
	require.Len(t, gen.gotRows, 1)
	assert.Equal(t, "101", gen.gotRows[0].HubID)

	// The project report URL derived from the issue link is persisted.
	rc, _, err := contexts.Get(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, "https://hub.accessible360.com/projects/101/issues", rc.ProjectIssueReportURL)
}

func TestHandleUploadNoValidRows(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{}, &fakeFiller{dir: t.TempDir()})

	csv := "HUB ID,Location\n,missing hub id\n"
	body, contentType := multipartCSV(t, csv)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleUpload(rec, req, types.ToolSummary)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No valid data found in CSV.")
}

func TestHandleUploadMissingFile(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{}, &fakeFiller{dir: t.TempDir()})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleUpload(rec, req, types.ToolSummary)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUploadThrottled(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("batch 1/2 failed: %w", report.ErrThrottled)}
	srv, _ := newTestServer(t, gen, &fakeFiller{dir: t.TempDir()})

	body, contentType := multipartCSV(t, uploadCSV)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleUpload(rec, req, types.ToolSummary)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "throttled")
}

func TestHandleUploadUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{}, &fakeFiller{dir: t.TempDir()})

	body, contentType := multipartCSV(t, uploadCSV)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	srv.handleUpload(rec, req, types.ToolSummary)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// scriptedLLMClient answers each batch with markdown echoing the batch's
// Hub IDs, optionally rejecting the first call as rate-limited.
type scriptedLLMClient struct {
	failFirst bool
	calls     int
}

func (c *scriptedLLMClient) GenerateContent(_ context.Context, _, content string) (string, error) {
	c.calls++
	if c.failFirst && c.calls == 1 {
		return "", fmt.Errorf("backend throttled: %w", llm.ErrRateLimited)
	}

	var batch []types.IssueRow
	if err := json.Unmarshal([]byte(content), &batch); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("### Upload Issues\n")
	for _, row := range batch {
		fmt.Fprintf(&b, "- **#%s**: %s [Link](%s)\n", row.HubID, row.Description, row.IssueLink)
	}
	return b.String(), nil
}

func (c *scriptedLLMClient) Close() error { return nil }

// TestHandleUploadRecoversFromThrottledBatch runs the full
// normalize-batch-send pipeline behind the upload handler: a real
// generator over a scripted backend whose first call is rate-limited. The
// combined response must carry every uploaded Hub ID in order.
func TestHandleUploadRecoversFromThrottledBatch(t *testing.T) {
	client := &scriptedLLMClient{failFirst: true}
	gen := report.NewGenerator(client, report.Config{
		TokenBudget:    1, // every row exceeds this, so one row per batch
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  2,
	}, zap.NewNop())

	contexts := newMemStore()
	srv := &Server{
		store:     contexts,
		generator: gen,
		filler:    &fakeFiller{dir: t.TempDir()},
		uploadDir: t.TempDir(),
		log:       zap.NewNop(),
	}

	csv := "HUB ID,Location,Name,Sitewide?,Component,Description of item/issue,Priority,Issue Link,Allyant Status\n"
	for i := 101; i <= 105; i++ {
		csv += fmt.Sprintf("%d,Homepage,Issue %d,No,,Issue %d detail,Serious,https://hub.accessible360.com/projects/42/issues/%d,Open\n", i, i, i, i)
	}

	body, contentType := multipartCSV(t, csv)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleUpload(rec, req, types.ToolSummary)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Every Hub ID survives batching, the retried first batch included,
	// and input order is preserved in the joined output.
	last := -1
	for i := 101; i <= 105; i++ {
		idx := strings.Index(resp.GPTResponse, fmt.Sprintf("#%d", i))
		require.GreaterOrEqual(t, idx, 0, "missing #%d", i)
		assert.Greater(t, idx, last)
		last = idx
	}

	// Five single-row batches plus the one rate-limited attempt.
	assert.Equal(t, 6, client.calls)

	// The last row's issue link drives the stored project report URL.
	rc, _, err := contexts.Get(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, "https://hub.accessible360.com/projects/105/issues", rc.ProjectIssueReportURL)
}

func TestHandleStoreDocumentData(t *testing.T) {
	srv, contexts := newTestServer(t, &fakeGenerator{}, &fakeFiller{dir: t.TempDir()})

	payload := `{"clientName":"Acme","platform":"Web","projectUrl":"https://acme.example","numViews":7,"numIssues":42,"gptResponse":"### Category","toolType":"summary"}`
	req := httptest.NewRequest(http.MethodPost, "/store-document-data", strings.NewReader(payload))
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleStoreDocumentData(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	rc, version, err := contexts.Get(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", rc.ClientName)
	assert.Equal(t, 42, rc.NumIssues)
	assert.Equal(t, types.ToolSummary, rc.ToolType)
	assert.Equal(t, int64(1), version)
}

func TestHandleStoreDocumentDataPreservesProjectURL(t *testing.T) {
	srv, contexts := newTestServer(t, &fakeGenerator{}, &fakeFiller{dir: t.TempDir()})

	// An upload already stored the derived project report URL.
	_, err := contexts.Put(context.Background(), "subject-1", &types.ReportContext{
		ProjectIssueReportURL: "https://hub.accessible360.com/projects/101/issues",
	}, 0)
	require.NoError(t, err)

	payload := `{"clientName":"Acme","gptResponse":"### Category"}`
	req := httptest.NewRequest(http.MethodPost, "/store-document-data", strings.NewReader(payload))
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleStoreDocumentData(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rc, _, err := contexts.Get(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", rc.ClientName)
	assert.Equal(t, "https://hub.accessible360.com/projects/101/issues", rc.ProjectIssueReportURL)
}

func TestHandleStoreDocumentDataValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{}, &fakeFiller{dir: t.TempDir()})

	tests := []struct {
		name    string
		payload string
	}{
		{"missing clientName", `{"gptResponse":"### Category"}`},
		{"missing gptResponse", `{"clientName":"Acme"}`},
		{"bad toolType", `{"clientName":"Acme","gptResponse":"x","toolType":"pdf"}`},
		{"not json", `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/store-document-data", strings.NewReader(tt.payload))
			req = middleware.WithSubject(req, "subject-1")

			rec := httptest.NewRecorder()
			srv.handleStoreDocumentData(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestHandleCreateDocument(t *testing.T) {
	fill := &fakeFiller{dir: t.TempDir()}
	srv, contexts := newTestServer(t, &fakeGenerator{}, fill)

	_, err := contexts.Put(context.Background(), "subject-1", &types.ReportContext{
		ClientName:  "Acme",
		ProjectURL:  "https://acme.example",
		NumViews:    7,
		NumIssues:   42,
		GPTResponse: "### Keyboard Access\n- **#101**: Dropdown issue. [Link](https://example.com/101)\n",
	}, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/create-document", nil)
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleCreateDocument(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "AuditSummaryReport-Acme")
	assert.Equal(t, "docx bytes", rec.Body.String())

	assert.Equal(t, "Acme", fill.gotData.ClientName)
	require.Len(t, fill.gotData.Categories, 1)
	assert.Equal(t, "Keyboard Access", fill.gotData.Categories[0].Title)

	// The context is single-use.
	_, _, err = contexts.Get(context.Background(), "subject-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleCreateDocumentMissingContext(t *testing.T) {
	srv, _ := newTestServer(t, &fakeGenerator{}, &fakeFiller{dir: t.TempDir()})

	req := httptest.NewRequest(http.MethodGet, "/create-document", nil)
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleCreateDocument(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "gptResponse is missing.")
}

func TestHandleCreateDocumentUnparseableResponse(t *testing.T) {
	srv, contexts := newTestServer(t, &fakeGenerator{}, &fakeFiller{dir: t.TempDir()})

	_, err := contexts.Put(context.Background(), "subject-1", &types.ReportContext{
		ClientName:  "Acme",
		GPTResponse: "No valid response from model.",
	}, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/create-document", nil)
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleCreateDocument(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unexpected shape")

	// The stored context survives a failed attempt.
	_, _, err = contexts.Get(context.Background(), "subject-1")
	assert.NoError(t, err)
}

func TestHandleCreateDocumentFillFailure(t *testing.T) {
	fill := &fakeFiller{dir: t.TempDir(), err: &templating.TemplateError{Message: "template missing"}}
	srv, contexts := newTestServer(t, &fakeGenerator{}, fill)

	_, err := contexts.Put(context.Background(), "subject-1", &types.ReportContext{
		ClientName:  "Acme",
		GPTResponse: "### Category\n- **#1**: issue. [Link](u)\n",
	}, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/create-document", nil)
	req = middleware.WithSubject(req, "subject-1")

	rec := httptest.NewRecorder()
	srv.handleCreateDocument(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMergeContextRetriesOnConflict(t *testing.T) {
	srv, contexts := newTestServer(t, &fakeGenerator{}, &fakeFiller{dir: t.TempDir()})

	// Seed so the merge reads version 1.
	_, err := contexts.Put(context.Background(), "subject-1", &types.ReportContext{ClientName: "Old"}, 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err = srv.mergeContext(req, "subject-1", func(rc *types.ReportContext) {
		rc.ClientName = "New"
	})
	require.NoError(t, err)

	rc, version, err := contexts.Get(context.Background(), "subject-1")
	require.NoError(t, err)
	assert.Equal(t, "New", rc.ClientName)
	assert.Equal(t, int64(2), version)
}
