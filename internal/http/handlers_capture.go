package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"fintrack/internal/ingest"
)

// Capture endpoints only return drafts; the client confirms a draft by
// posting it to /api/transactions.

const maxImageBytes = 10 << 20

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

func (s *Server) handleCaptureReceipt(w http.ResponseWriter, r *http.Request) {
	if _, err := currentSession(r); err != nil {
		writeError(w, r, err)
		return
	}
	data, header, err := s.readUpload(w, r, "image", maxImageBytes)
	if err != nil {
		writeError(w, r, err)
		return
	}

	mimeType := header
	if !imageTypes[mimeType] {
		mimeType = http.DetectContentType(data)
	}
	if !imageTypes[mimeType] {
		writeError(w, r, fmt.Errorf("%w: unsupported image type %q", errBadRequest, mimeType))
		return
	}

	d, err := s.capture.Receipt(r.Context(), data, mimeType)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse(d))
}

func (s *Server) handleCaptureVoice(w http.ResponseWriter, r *http.Request) {
	if _, err := currentSession(r); err != nil {
		writeError(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, fh, err := r.FormFile("audio")
	if err != nil {
		writeError(w, r, uploadError("audio", err))
		return
	}
	defer file.Close()

	d, err := s.capture.Voice(r.Context(), file, fh.Filename)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse(d))
}

func (s *Server) handleCaptureText(w http.ResponseWriter, r *http.Request) {
	if _, err := currentSession(r); err != nil {
		writeError(w, r, err)
		return
	}
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.capture.Text(r.Context(), p.Get("text"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, draftResponse(d))
}

// readUpload reads one multipart file field fully, returning its declared type.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, field string, limit int64) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+(1<<20))
	file, fh, err := r.FormFile(field)
	if err != nil {
		return nil, "", uploadError(field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", field, err)
	}
	if int64(len(data)) > limit {
		return nil, "", &http.MaxBytesError{Limit: limit}
	}
	ct := strings.ToLower(strings.TrimSpace(strings.Split(fh.Header.Get("Content-Type"), ";")[0]))
	return data, ct, nil
}

func uploadError(field string, err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	return fmt.Errorf("%w: multipart field %q is required: %v", errBadRequest, field, err)
}

type draft struct {
	ingest.Draft
	NeedsReview bool `json:"needsReview"`
}

// draftResponse flags drafts whose amount or category had to be guessed.
func draftResponse(d ingest.Draft) draft {
	return draft{
		Draft:       d,
		NeedsReview: d.WasDefaulted(ingest.FieldAmount) || d.WasDefaulted(ingest.FieldCategory),
	}
}
