package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/maraichr/pictor/internal/config"
	"github.com/maraichr/pictor/internal/uploader"
	"github.com/maraichr/pictor/pkg/apierr"
)

// maxUploadBytes caps one multipart request body.
const maxUploadBytes = 512 * 1024 * 1024

// UploadHandler starts batch uploads with progress. The response returns the
// session id before any file finishes; the pipelines run detached.
type UploadHandler struct {
	logger  *slog.Logger
	uploads *uploader.Service
	limits  config.BulkConfig
}

func NewUploadHandler(logger *slog.Logger, uploads *uploader.Service, limits config.BulkConfig) *UploadHandler {
	return &UploadHandler{logger: logger, uploads: uploads, limits: limits}
}

func (h *UploadHandler) Start(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		// Oversized or malformed body, not a missing files field.
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	headers := r.MultipartForm.File["files"]
	if verr := validateBatchSize(len(headers), h.limits.MaxUploadFiles); verr != nil {
		if len(headers) == 0 {
			verr = apierr.NoFiles()
		} else {
			verr = apierr.TooManyFiles(h.limits.MaxUploadFiles)
		}
		writeAPIError(w, h.logger, verr)
		return
	}

	files := make([]uploader.File, len(headers))
	for i, fh := range headers {
		files[i] = uploader.File{
			Name:     fh.Filename,
			Size:     fh.Size,
			MimeType: fh.Header.Get("Content-Type"),
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		}
	}

	session := h.uploads.StartBatch(r.Context(), owner, files, r.FormValue("style_hint"))

	h.logger.Info("upload batch started",
		slog.String("session_id", session.ID),
		slog.Int("total_files", session.Total))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"session_id":  session.ID,
		"total_files": session.Total,
	})
}
