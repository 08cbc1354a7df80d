package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/statm8/internal/analysis"
	"github.com/KaramelBytes/statm8/internal/pipeline"
	"github.com/KaramelBytes/statm8/internal/publish"
	"github.com/KaramelBytes/statm8/internal/utils"
)

// GenerateRequest is the body of both generate endpoints.
type GenerateRequest struct {
	FilePath   string `json:"file_path"`
	Comments   string `json:"comments,omitempty"`
	MaxRetries *int   `json:"max_retries,omitempty"`
	UID        string `json:"uid,omitempty"`
	CSVID      string `json:"csv_id,omitempty"`
}

// AnalyzeResponse is returned by /analyze.
type AnalyzeResponse struct {
	FilePath string `json:"file_path"`
	*analysis.DatasetProfile
}

var plotExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".svg": true}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to Statm8 API"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Missing multipart field \"file\"")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext != ".csv" && ext != ".json" {
		writeError(w, http.StatusBadRequest, "Only CSV and JSON files are supported")
		return
	}

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.logger.Error("save upload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error processing file: "+err.Error())
		return
	}
	prof, err := analysis.ProfileFile(path, s.cfg.Profile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error processing file: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AnalyzeResponse{FilePath: path, DatasetProfile: prof})
}

// saveUpload stores the file as <upload_dir>/<name>-<short id><ext> so that
// concurrent uploads of the same name get distinct output directories.
func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	if err := utils.EnsureDir(s.cfg.UploadDir); err != nil {
		return "", err
	}
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	stem := utils.SafeFileName(strings.TrimSuffix(base, ext))
	name := fmt.Sprintf("%s-%s%s", stem, uuid.NewString()[:8], strings.ToLower(ext))
	path := filepath.Join(s.cfg.UploadDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

// decodeGenerate parses the body and the max_retries query parameter. The body
// value wins when both are present. It writes the error response itself.
func (s *Server) decodeGenerate(w http.ResponseWriter, r *http.Request) (GenerateRequest, bool) {
	var req GenerateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body: "+err.Error())
		return req, false
	}
	if strings.TrimSpace(req.FilePath) == "" {
		writeError(w, http.StatusUnprocessableEntity, "file_path is required")
		return req, false
	}
	if req.MaxRetries == nil {
		if q := r.URL.Query().Get("max_retries"); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "max_retries must be an integer")
				return req, false
			}
			req.MaxRetries = &n
		}
	}
	if req.MaxRetries != nil && *req.MaxRetries < 0 {
		writeError(w, http.StatusUnprocessableEntity, "max_retries must not be negative")
		return req, false
	}
	if err := pipeline.Validate(req.FilePath); err != nil {
		writeValidationError(w, err, req.FilePath)
		return req, false
	}
	return req, true
}

func (s *Server) pipelineRequest(r *http.Request, req GenerateRequest) pipeline.Request {
	id := requestIDFrom(r.Context())
	return pipeline.Request{
		FilePath:   req.FilePath,
		Comments:   req.Comments,
		MaxRetries: req.MaxRetries,
		RequestID:  id,
		OnBlockDone: s.recorder.Hook(publish.Meta{
			RequestID: id,
			UID:       req.UID,
			CSVID:     req.CSVID,
			FilePath:  req.FilePath,
		}),
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeGenerate(w, r)
	if !ok {
		return
	}
	res, err := s.pipeline.Run(r.Context(), s.pipelineRequest(r, req))
	if err != nil {
		if errors.Is(err, pipeline.ErrFileNotFound) || errors.Is(err, pipeline.ErrUnsupportedType) {
			writeValidationError(w, err, req.FilePath)
			return
		}
		if r.Context().Err() != nil {
			return
		}
		s.logger.Error("generate failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error generating EDA: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeGenerate(w, r)
	if !ok {
		return
	}
	sse := newSSEWriter(w)
	err := s.pipeline.Stream(r.Context(), s.pipelineRequest(r, req), sse.Send)
	if err != nil && r.Context().Err() == nil {
		s.logger.Warn("stream ended with error",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err))
	}
}

func (s *Server) handleListPlots(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("output_dir")
	if dir == "" {
		dir = s.cfg.OutputRoot
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeJSON(w, http.StatusOK, map[string]any{"plots": []string{}, "message": "Output directory does not exist"})
			return
		}
		writeError(w, http.StatusInternalServerError, "Error listing plots: "+err.Error())
		return
	}
	plots := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() && plotExts[strings.ToLower(filepath.Ext(e.Name()))] {
			plots = append(plots, e.Name())
		}
	}
	sort.Strings(plots)
	writeJSON(w, http.StatusOK, map[string]any{
		"output_dir":  dir,
		"total_plots": len(plots),
		"plots":       plots,
	})
}

func writeValidationError(w http.ResponseWriter, err error, filePath string) {
	switch {
	case errors.Is(err, pipeline.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "File not found: "+filePath)
	case errors.Is(err, pipeline.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "Only CSV files are supported")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
