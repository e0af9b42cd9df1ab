package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/maraichr/pictor/internal/bulk"
	"github.com/maraichr/pictor/internal/caption"
	"github.com/maraichr/pictor/internal/config"
	"github.com/maraichr/pictor/internal/store/postgres"
	"github.com/maraichr/pictor/pkg/apierr"
)

// BulkHandler serves the synchronous bulk entry points: the engine runs
// inline and the aggregated outcome is the response body, with the status
// chosen by the shared full/partial/failure rule.
type BulkHandler struct {
	logger    *slog.Logger
	store     ImageStore
	blobs     BlobStore
	captioner caption.Captioner
	cache     CaptionCache
	limits    config.BulkConfig
}

func NewBulkHandler(logger *slog.Logger, store ImageStore, blobs BlobStore, captioner caption.Captioner, cache CaptionCache, limits config.BulkConfig) *BulkHandler {
	return &BulkHandler{logger: logger, store: store, blobs: blobs, captioner: captioner, cache: cache, limits: limits}
}

type updateItem struct {
	ID          string   `json:"id"`
	FileName    *string  `json:"file_name"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

func (u updateItem) Ref() string { return u.ID }

// idItem is a bare record id work item used by delete and recaption.
type idItem string

func (i idItem) Ref() string { return string(i) }

func idItems(ids []string) []idItem {
	items := make([]idItem, len(ids))
	for i, id := range ids {
		items[i] = idItem(id)
	}
	return items
}

// Update handles PATCH /images/bulk: metadata patches for many records.
func (h *BulkHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Items []updateItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}
	if verr := validateBatchSize(len(req.Items), h.limits.MaxUpdates); verr != nil {
		writeAPIError(w, h.logger, verr)
		return
	}

	outcome := bulk.Run(r.Context(), req.Items, func(ctx context.Context, it updateItem) (any, error) {
		id, err := uuid.Parse(it.ID)
		if err != nil {
			return nil, apierr.InvalidID("image")
		}

		img, err := h.store.UpdateImageMetadata(ctx, postgres.UpdateImageMetadataParams{
			ID:          id,
			OwnerID:     owner,
			FileName:    it.FileName,
			Description: it.Description,
			Tags:        it.Tags,
		})
		if err != nil {
			if apierr.IsNotFound(err) {
				return nil, apierr.ImageNotFound()
			}
			return nil, apierr.ImageUpdateFailed(err)
		}
		return img, nil
	}, bulk.Options{MaxConcurrency: h.limits.MaxConcurrency})

	writeJSON(w, bulk.HTTPStatus(outcome), outcome)
}

// Delete handles POST /images/bulk/delete: removes many records and their
// blobs. Record first, blob best-effort after, per unit.
func (h *BulkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}
	if verr := validateBatchSize(len(req.IDs), h.limits.MaxDeletes); verr != nil {
		writeAPIError(w, h.logger, verr)
		return
	}

	outcome := bulk.Run(r.Context(), idItems(req.IDs), func(ctx context.Context, it idItem) (any, error) {
		id, err := uuid.Parse(string(it))
		if err != nil {
			return nil, apierr.InvalidID("image")
		}

		img, err := h.store.GetImage(ctx, id, owner)
		if err != nil {
			if apierr.IsNotFound(err) {
				return nil, apierr.ImageNotFound()
			}
			return nil, apierr.ImageDeleteFailed(err)
		}

		if err := h.store.DeleteImage(ctx, id, owner); err != nil {
			if apierr.IsNotFound(err) {
				return nil, apierr.ImageNotFound()
			}
			return nil, apierr.ImageDeleteFailed(err)
		}

		if h.blobs != nil {
			if err := h.blobs.Remove(ctx, img.ObjectPath); err != nil {
				h.logger.Warn("blob removal failed",
					slog.String("object_path", img.ObjectPath),
					slog.String("error", err.Error()))
			}
		}
		return map[string]string{"id": string(it)}, nil
	}, bulk.Options{MaxConcurrency: h.limits.MaxConcurrency})

	writeJSON(w, bulk.HTTPStatus(outcome), outcome)
}

// Recaption handles POST /images/bulk/recaption: re-runs analysis for many
// existing records. A unit whose analyzer call fails keeps its record
// unchanged.
func (h *BulkHandler) Recaption(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}

	if h.captioner == nil || h.blobs == nil {
		writeAPIError(w, h.logger, apierr.CaptioningDisabled())
		return
	}

	var req struct {
		IDs       []string `json:"ids"`
		StyleHint string   `json:"style_hint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}
	if verr := validateBatchSize(len(req.IDs), h.limits.MaxRecaptions); verr != nil {
		writeAPIError(w, h.logger, verr)
		return
	}

	outcome := bulk.Run(r.Context(), idItems(req.IDs), func(ctx context.Context, it idItem) (any, error) {
		id, err := uuid.Parse(string(it))
		if err != nil {
			return nil, apierr.InvalidID("image")
		}

		img, err := recaptionImage(ctx, h.logger, h.store, h.blobs, h.captioner, h.cache, id, owner, req.StyleHint)
		if err != nil {
			return nil, err
		}
		return img, nil
	}, bulk.Options{MaxConcurrency: h.limits.MaxConcurrency})

	writeJSON(w, bulk.HTTPStatus(outcome), outcome)
}
