package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maraichr/pictor/internal/caption"
	"github.com/maraichr/pictor/internal/store/postgres"
	"github.com/maraichr/pictor/pkg/apierr"
)

type ImageHandler struct {
	logger    *slog.Logger
	store     ImageStore
	blobs     BlobStore
	captioner caption.Captioner
	cache     CaptionCache
}

func NewImageHandler(logger *slog.Logger, store ImageStore, blobs BlobStore, captioner caption.Captioner, cache CaptionCache) *ImageHandler {
	return &ImageHandler{logger: logger, store: store, blobs: blobs, captioner: captioner, cache: cache}
}

func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	images, err := h.store.ListImages(r.Context(), owner, int32(limit), int32(offset))
	if err != nil {
		writeAPIError(w, h.logger, apierr.ImageListFailed(err))
		return
	}

	total, err := h.store.CountImages(r.Context(), owner)
	if err != nil {
		writeAPIError(w, h.logger, apierr.ImageListFailed(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"images": images,
		"total":  total,
	})
}

func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidID("image"))
		return
	}

	img, err := h.store.GetImage(r.Context(), id, owner)
	if err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.ImageNotFound())
			return
		}
		writeAPIError(w, h.logger, apierr.ImageListFailed(err))
		return
	}

	writeJSON(w, http.StatusOK, img)
}

func (h *ImageHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidID("image"))
		return
	}

	var req struct {
		FileName    *string  `json:"file_name"`
		Description *string  `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	img, err := h.store.UpdateImageMetadata(r.Context(), postgres.UpdateImageMetadataParams{
		ID:          id,
		OwnerID:     owner,
		FileName:    req.FileName,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.ImageNotFound())
			return
		}
		writeAPIError(w, h.logger, apierr.ImageUpdateFailed(err))
		return
	}

	writeJSON(w, http.StatusOK, img)
}

func (h *ImageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidID("image"))
		return
	}

	if err := h.deleteImage(r.Context(), id, owner); err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.ImageNotFound())
			return
		}
		writeAPIError(w, h.logger, apierr.ImageDeleteFailed(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// deleteImage removes the record, then the blob best-effort. A dangling blob
// after a crashed delete is tolerated; a dangling record is not.
func (h *ImageHandler) deleteImage(ctx context.Context, id, owner uuid.UUID) error {
	img, err := h.store.GetImage(ctx, id, owner)
	if err != nil {
		return err
	}

	if err := h.store.DeleteImage(ctx, id, owner); err != nil {
		return err
	}

	if h.blobs != nil {
		if err := h.blobs.Remove(ctx, img.ObjectPath); err != nil {
			h.logger.Warn("blob removal failed",
				slog.String("object_path", img.ObjectPath),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

func (h *ImageHandler) Recaption(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidID("image"))
		return
	}

	if h.captioner == nil || h.blobs == nil {
		writeAPIError(w, h.logger, apierr.CaptioningDisabled())
		return
	}

	var req struct {
		StyleHint string `json:"style_hint"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(w, h.logger, apierr.InvalidRequestBody())
			return
		}
	}

	img, err := recaptionImage(r.Context(), h.logger, h.store, h.blobs, h.captioner, h.cache, id, owner, req.StyleHint)
	if err != nil {
		if ae, isAPIErr := err.(*apierr.Error); isAPIErr {
			writeAPIError(w, h.logger, ae)
			return
		}
		writeAPIError(w, h.logger, apierr.CaptionFailed(err))
		return
	}

	writeJSON(w, http.StatusOK, img)
}

// recaptionImage re-runs analysis against an existing record and stores the
// fresh description/tags. Shared by the single and bulk recaption entry
// points.
func recaptionImage(ctx context.Context, logger *slog.Logger, store ImageStore, blobs BlobStore, captioner caption.Captioner, cache CaptionCache, id, owner uuid.UUID, styleHint string) (postgres.Image, error) {
	img, err := store.GetImage(ctx, id, owner)
	if err != nil {
		if apierr.IsNotFound(err) {
			return postgres.Image{}, apierr.ImageNotFound()
		}
		return postgres.Image{}, apierr.ImageListFailed(err)
	}

	key := caption.CacheKey(img.ObjectPath, styleHint)
	var (
		result *caption.Result
		hit    bool
	)
	if cache != nil {
		result, hit = cache.Get(ctx, key)
	}
	if !hit {
		result, err = captioner.Caption(ctx, blobs.PublicURL(img.ObjectPath), styleHint)
		if err != nil {
			return postgres.Image{}, apierr.CaptionFailed(err)
		}
		if cache != nil {
			if err := cache.Set(ctx, key, result); err != nil {
				logger.Warn("caption cache write failed",
					slog.String("object_path", img.ObjectPath),
					slog.String("error", err.Error()))
			}
		}
	}

	enriched, err := store.SetImageCaption(ctx, id, owner, result.Description, result.Tags)
	if err != nil {
		if apierr.IsNotFound(err) {
			return postgres.Image{}, apierr.ImageNotFound()
		}
		return postgres.Image{}, apierr.ImageUpdateFailed(err)
	}
	return enriched, nil
}
