package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/regimport/internal/application"
	"github.com/JonMunkholm/regimport/internal/core"
	"github.com/JonMunkholm/regimport/internal/source"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in memory.
const multipartMemory = 32 << 20

// handleHealth reports whether the sink is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIndex renders the summary page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := summaryPage(s.service.Summary(ctx), s.service.LatestRun()).Render(ctx, w); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
	}
}

// handleListTables returns the summary of every registry table.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Summary(r.Context()))
}

// handleLatestRun returns the most recent run, or 404 before the first one.
func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	run := s.service.LatestRun()
	if run == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "no import has run yet", Code: "RUN000"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleStatus returns run slot usage, the runs in progress and the registry size.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Imports core.RunLimiterStatus `json:"imports"`
		Tables  int                   `json:"tables"`
	}{s.service.LimiterStatus(), s.service.Registry().TableCount()})
}

// handleImport accepts a multipart workbook upload in the "file" field and
// imports it synchronously. Optional form fields: "sheets" (comma-separated
// labels) and "batch_size".
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxFileSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, err, 0)
			return
		}
		respondError(w, r, fmt.Errorf("invalid upload form: %w", err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, fmt.Errorf("no file provided: %w", err), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if header.Size > s.cfg.UploadMaxFileSize {
		respondError(w, r, fmt.Errorf("%s: file too large (%d bytes)", header.Filename, header.Size), 0)
		return
	}

	name := filepath.Base(header.Filename)
	if !source.Supported(name) {
		respondError(w, r, fmt.Errorf("%w: %s", source.ErrUnsupportedSource, name), 0)
		return
	}

	opts := application.RunOptions{Source: name, Sheets: splitList(r.FormValue("sheets"))}
	if v := r.FormValue("batch_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, r, fmt.Errorf("invalid batch_size %q", v), http.StatusBadRequest)
			return
		}
		opts.BatchSize = n
	}

	dir, err := os.MkdirTemp("", "regimport-upload-*")
	if err != nil {
		respondError(w, r, fmt.Errorf("stage upload: %w", err), http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := saveUpload(path, file); err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	run, err := s.service.Import(r.Context(), path, opts)
	if err != nil {
		if errors.Is(err, core.ErrTooManyRuns) {
			w.Header().Set("Retry-After", "30")
		}
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func saveUpload(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("stage upload: %w", err)
	}
	return f.Close()
}

// splitList parses "a, b" into its trimmed, non-empty parts.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
