package handler

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/maraichr/pictor/internal/caption"
	"github.com/maraichr/pictor/internal/store/postgres"
)

// ImageStore is the record-store surface the handlers consume. *store.Store
// satisfies it; tests substitute fakes.
type ImageStore interface {
	GetImage(ctx context.Context, id, ownerID uuid.UUID) (postgres.Image, error)
	UpdateImageMetadata(ctx context.Context, arg postgres.UpdateImageMetadataParams) (postgres.Image, error)
	SetImageCaption(ctx context.Context, id, ownerID uuid.UUID, description string, tags []string) (postgres.Image, error)
	DeleteImage(ctx context.Context, id, ownerID uuid.UUID) error
	ListImages(ctx context.Context, ownerID uuid.UUID, limit, offset int32) ([]postgres.Image, error)
	CountImages(ctx context.Context, ownerID uuid.UUID) (int64, error)
}

// BlobStore is the blob-store surface the handlers consume.
type BlobStore interface {
	Put(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectPath string) error
	PublicURL(objectPath string) string
}

// CaptionCache is the caption-cache surface the handlers consume.
// *caption.Cache satisfies it.
type CaptionCache interface {
	Get(ctx context.Context, digest string) (*caption.Result, bool)
	Set(ctx context.Context, digest string, r *caption.Result) error
}
