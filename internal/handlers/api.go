package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tgvault/tgvault/internal/config"
	"github.com/tgvault/tgvault/internal/services"
	"github.com/tgvault/tgvault/internal/spool"
	"github.com/tgvault/tgvault/internal/telegram"
)

// APIHandler serves the JSON API.
type APIHandler struct {
	files         *services.FileService
	tg            telegram.Client
	uploadTimeout time.Duration
	log           zerolog.Logger
}

// NewAPIHandler creates the API handler.
func NewAPIHandler(files *services.FileService, tg telegram.Client, uploadTimeout time.Duration, log zerolog.Logger) *APIHandler {
	return &APIHandler{files: files, tg: tg, uploadTimeout: uploadTimeout, log: log}
}

// FileResponse is the row shape returned by upload and list.
type FileResponse struct {
	ID     uint   `json:"id"`
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health reports liveness.
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// Upload receives a multipart file in the "upload" field and stores it on
// Telegram. The part is streamed straight into the spool, never buffered
// whole in memory.
func (h *APIHandler) Upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, "Multipart body required", http.StatusBadRequest)
		return
	}

	var part *multipartPart
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			respondError(w, "Failed to read multipart body", http.StatusBadRequest)
			return
		}
		if p.FormName() == "upload" {
			part = &multipartPart{
				reader:      p,
				filename:    p.FileName(),
				contentType: p.Header.Get("Content-Type"),
			}
			break
		}
		p.Close()
	}
	if part == nil {
		respondError(w, "Form field \"upload\" is required", http.StatusBadRequest)
		return
	}
	defer part.reader.Close()

	filename := part.filename
	if filename == "" {
		filename = "file"
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.uploadTimeout)
	defer cancel()

	file, err := h.files.Upload(ctx, part.reader, filename, part.contentType)
	if err != nil {
		h.respondUploadError(w, err)
		return
	}

	respondJSON(w, FileResponse{ID: file.ID, FileID: file.TGFileID, Name: file.Name, Size: file.Size}, http.StatusOK)
}

type multipartPart struct {
	reader      io.ReadCloser
	filename    string
	contentType string
}

func (h *APIHandler) respondUploadError(w http.ResponseWriter, err error) {
	var te *telegram.TransportError
	switch {
	case errors.Is(err, spool.ErrSizeLimit):
		respondError(w, "File exceeds the Telegram Bot API upload limit: "+err.Error(), http.StatusRequestEntityTooLarge)
	case errors.Is(err, spool.ErrDeadline), errors.Is(err, telegram.ErrTimeout):
		respondError(w, "Upload timed out (increase UPLOAD_TIMEOUT_SECONDS)", http.StatusGatewayTimeout)
	case errors.As(err, &te):
		if h.tg.Mode() == config.ModeUser && looksLikeBadChat(te.Detail) {
			respondError(w, "Upload failed: invalid TG_CHAT_ID or account not in chat. Details: "+te.Detail, http.StatusBadRequest)
			return
		}
		respondError(w, "Telegram error: "+te.Detail, http.StatusBadGateway)
	default:
		respondError(w, "Upload failed: "+err.Error(), http.StatusInternalServerError)
	}
}

// looksLikeBadChat spots the wire errors that mean the destination, not the
// payload, is the problem.
func looksLikeBadChat(detail string) bool {
	return strings.Contains(detail, "PEER_ID_INVALID") ||
		strings.Contains(detail, "CHANNEL_INVALID") ||
		strings.Contains(detail, "not resolvable")
}

// List returns stored files, optionally filtered by ?q= name search.
func (h *APIHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.List(r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, "Failed to list files: "+err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]FileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, FileResponse{ID: f.ID, FileID: f.TGFileID, Name: f.Name, Size: f.Size})
	}
	respondJSON(w, out, http.StatusOK)
}

// Download streams a stored file back through the server.
func (h *APIHandler) Download(w http.ResponseWriter, r *http.Request) {
	identifier := chi.URLParam(r, "fileID")
	if identifier == "" {
		respondError(w, "File identifier is required", http.StatusBadRequest)
		return
	}

	dl, err := h.files.Download(r.Context(), identifier)
	if err != nil {
		var te *telegram.TransportError
		switch {
		case errors.Is(err, services.ErrFileNotFound), errors.Is(err, telegram.ErrNotFound):
			respondError(w, "File not found", http.StatusNotFound)
		case errors.As(err, &te):
			respondError(w, "Telegram download failed: "+te.Detail, http.StatusBadGateway)
		default:
			respondError(w, "Download failed: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Name))
	if dl.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}

	if _, err := io.Copy(w, dl.Body); err != nil {
		// Headers are gone; nothing to send. The client dropped or the
		// remote stream broke mid-flight.
		h.log.Warn().Err(err).Str("file", identifier).Msg("download stream interrupted")
	}
}

// ResolveChat reports the session identity and the resolved destination.
// Only meaningful in user mode.
func (h *APIHandler) ResolveChat(w http.ResponseWriter, r *http.Request) {
	diag, ok := h.tg.(interface {
		Diagnose(ctx context.Context) (*telegram.Diagnostics, error)
	})
	if !ok {
		respondError(w, "Diagnostics available only in user mode", http.StatusBadRequest)
		return
	}

	d, err := diag.Diagnose(r.Context())
	if err != nil {
		respondError(w, "Failed to resolve chat: "+err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, d, http.StatusOK)
}

// Helper functions

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, ErrorResponse{Error: message}, status)
}
