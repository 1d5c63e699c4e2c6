package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/allyant/audit-reporter/internal/csvdata"
	"github.com/allyant/audit-reporter/internal/markdown"
	"github.com/allyant/audit-reporter/internal/server/middleware"
	"github.com/allyant/audit-reporter/internal/store"
	"github.com/allyant/audit-reporter/internal/templating"
	"github.com/allyant/audit-reporter/internal/types"
)

// maxUploadBytes bounds the multipart form size.
const maxUploadBytes = 32 << 20

var validate = validator.New()

// handleUpload receives a CSV upload, runs the full normalize → batch →
// model pipeline, and returns the combined report text.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, tool types.ToolType) {
	subject, err := middleware.GetSubject(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "File not found or invalid")
		return
	}
	defer file.Close()

	// Keep a copy of the upload on disk, extension preserved.
	savedPath, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.log.Error("failed to save upload", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Error processing file upload")
		return
	}

	saved, err := os.Open(savedPath)
	if err != nil {
		s.log.Error("failed to reopen upload", zap.String("path", savedPath), zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Error processing file upload")
		return
	}
	defer saved.Close()

	result, err := csvdata.Parse(saved)
	if err != nil {
		s.log.Warn("CSV parse failed", zap.String("file", header.Filename), zap.Error(err))
		s.errorResponse(w, http.StatusBadRequest, "Error parsing CSV file")
		return
	}
	if result.Skipped > 0 {
		s.log.Warn("dropped invalid CSV rows", zap.Int("skipped", result.Skipped))
	}
	if len(result.Rows) == 0 {
		s.errorResponse(w, HTTPStatus(&ErrNoValidRows{}), "No valid data found in CSV.")
		return
	}

	gptResponse, err := s.generator.Generate(r.Context(), result.Rows, tool)
	if err != nil {
		s.log.Error("report generation failed", zap.String("tool", string(tool)), zap.Error(err))
		status := HTTPStatus(err)
		if status == http.StatusServiceUnavailable {
			s.errorResponse(w, status, "Model backend is throttled, please retry later.")
		} else {
			s.errorResponse(w, status, "An error occurred during the upload. Please try again later.")
		}
		return
	}

	if result.ProjectReportURL != "" {
		if err := s.mergeContext(r, subject, func(rc *types.ReportContext) {
			rc.ProjectIssueReportURL = result.ProjectReportURL
		}); err != nil {
			s.log.Error("failed to persist project report URL", zap.Error(err))
			s.errorResponse(w, http.StatusInternalServerError, "Failed to save session.")
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, types.UploadResponse{
		Message:     "File uploaded successfully.",
		GPTResponse: gptResponse,
	})
}

// handleStoreDocumentData persists the client metadata and model response
// needed for document creation.
func (s *Server) handleStoreDocumentData(w http.ResponseWriter, r *http.Request) {
	subject, err := middleware.GetSubject(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req types.StoreDocumentDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.mergeContext(r, subject, func(rc *types.ReportContext) {
		rc.ClientName = req.ClientName
		rc.Platform = req.Platform
		rc.ProjectURL = req.ProjectURL
		rc.NumViews = req.NumViews
		rc.NumIssues = req.NumIssues
		rc.GPTResponse = req.GPTResponse
		rc.ToolType = types.ToolType(req.ToolType)
	})
	if err != nil {
		var conflict *store.VersionConflictError
		if errors.As(err, &conflict) {
			s.errorResponse(w, http.StatusConflict, "Document data changed concurrently, please retry.")
			return
		}
		s.log.Error("failed to store document data", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Failed to save session.")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]string{
		"message": "Session updated successfully with document data",
	})
}

// handleCreateDocument builds the DOCX report from the stored context and
// streams it back. The stored context is destroyed on success.
func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	subject, err := middleware.GetSubject(r)
	if err != nil {
		s.errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	rc, _, err := s.store.Get(r.Context(), subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusBadRequest, "gptResponse is missing.")
			return
		}
		s.log.Error("failed to load report context", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Error creating document")
		return
	}
	if rc.GPTResponse == "" {
		s.errorResponse(w, HTTPStatus(&ErrMissingGPTResponse{}), "gptResponse is missing.")
		return
	}

	categories := markdown.ParseCategories(rc.GPTResponse)
	if err := markdown.ValidateCategories(categories); err != nil {
		s.log.Warn("model response failed shape validation", zap.Error(err))
		s.errorResponse(w, HTTPStatus(err), "Stored model response has an unexpected shape.")
		return
	}

	outPath, err := s.filler.Fill(templating.ReportData{
		ClientName: rc.ClientName,
		Domain:     rc.ProjectURL,
		IssueCount: rc.NumIssues,
		ViewCount:  rc.NumViews,
		Categories: categories,
	})
	if err != nil {
		s.log.Error("document creation failed", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "Error creating document")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(outPath)))
	http.ServeFile(w, r, outPath)

	// The context is single-use; clear it now that the document is out.
	if err := s.store.Delete(r.Context(), subject); err != nil {
		s.log.Warn("failed to delete report context", zap.Error(err))
	}
}

// mergeContext applies fn to the subject's stored context under optimistic
// versioning, retrying once if a concurrent writer got there first.
func (s *Server) mergeContext(r *http.Request, subject string, fn func(*types.ReportContext)) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		rc, version, err := s.store.Get(r.Context(), subject)
		if errors.Is(err, store.ErrNotFound) {
			rc, version = &types.ReportContext{}, 0
		} else if err != nil {
			return err
		}

		fn(rc)

		if _, err := s.store.Put(r.Context(), subject, rc, version); err != nil {
			var conflict *store.VersionConflictError
			if errors.As(err, &conflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

// saveUpload writes the uploaded file under the upload directory,
// preserving the original extension.
func (s *Server) saveUpload(file io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	ext := filepath.Ext(originalName)
	if ext == "" {
		ext = ".csv"
	}
	out, err := os.CreateTemp(s.uploadDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return "", fmt.Errorf("failed to write upload file: %w", err)
	}
	return out.Name(), nil
}
