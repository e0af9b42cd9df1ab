// Package uploader runs the multi-stage upload-and-caption pipeline for
// batches of files, publishing every stage transition to the batch's progress
// session.
package uploader

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/maraichr/pictor/internal/bulk"
	"github.com/maraichr/pictor/internal/caption"
	"github.com/maraichr/pictor/internal/progress"
	"github.com/maraichr/pictor/internal/store/postgres"
	"github.com/maraichr/pictor/pkg/apierr"
)

// BlobStore is the slice of the blob client the pipeline needs.
type BlobStore interface {
	Put(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, objectPath string) error
	PublicURL(objectPath string) string
}

// ImageStore is the slice of the record store the pipeline needs.
type ImageStore interface {
	CreateImage(ctx context.Context, arg postgres.CreateImageParams) (postgres.Image, error)
	SetImageCaption(ctx context.Context, id, ownerID uuid.UUID, description string, tags []string) (postgres.Image, error)
}

// File is one work item in an upload batch: everything needed to stream the
// bytes plus the client-visible name. Immutable once the batch starts.
type File struct {
	Name     string
	Size     int64
	MimeType string
	Open     func() (io.ReadCloser, error)
}

// item pairs a File with its stable per-batch reference.
type item struct {
	ref  string
	file File
}

func (i item) Ref() string { return i.ref }

// Service orchestrates upload batches.
type Service struct {
	logger      *slog.Logger
	blobs       BlobStore
	images      ImageStore
	captioner   caption.Captioner
	cache       *caption.Cache
	registry    *progress.Registry
	concurrency int
}

// New creates an upload service. captioner may be nil (captioning disabled);
// cache may be nil (every analysis is a fresh call).
func New(logger *slog.Logger, blobs BlobStore, images ImageStore, captioner caption.Captioner, cache *caption.Cache, registry *progress.Registry, concurrency int) *Service {
	return &Service{
		logger:      logger,
		blobs:       blobs,
		images:      images,
		captioner:   captioner,
		cache:       cache,
		registry:    registry,
		concurrency: concurrency,
	}
}

// StartBatch opens a progress session for the batch and returns it
// immediately; the pipelines run as a background task owned by the session,
// decoupled from the request that started them. Callers respond first, the
// batch processes after.
func (s *Service) StartBatch(ctx context.Context, ownerID uuid.UUID, files []File, styleHint string) *progress.Session {
	session := s.registry.Create(len(files))

	items := make([]item, len(files))
	for i, f := range files {
		items[i] = item{ref: fmt.Sprintf("file-%d", i+1), file: f}
		session.AddFile(items[i].ref, f.Name)
	}

	// The batch outlives the HTTP request; only request cancellation is
	// severed, request-scoped values stay visible.
	bgCtx := context.WithoutCancel(ctx)

	go func() {
		outcome := bulk.Run(bgCtx, items, func(ctx context.Context, it item) (any, error) {
			return s.processFile(ctx, session, ownerID, it, styleHint)
		}, bulk.Options{MaxConcurrency: s.concurrency})

		s.registry.Complete(session.ID, outcome)
	}()

	return session
}

// processFile drives one file through uploading → persisting → analyzing →
// completed, failing from whichever stage errors. Every transition updates
// the session and broadcasts immediately.
func (s *Service) processFile(ctx context.Context, session *progress.Session, ownerID uuid.UUID, it item, styleHint string) (any, error) {
	ref, f := it.ref, it.file

	// Stage: uploading
	session.SetStage(ref, progress.StageUploading)

	objectPath := fmt.Sprintf("%s/%s/%s", ownerID, uuid.New(), SanitizeFileName(f.Name))

	reader, err := f.Open()
	if err != nil {
		session.FailFile(ref, "open upload: "+err.Error())
		return nil, apierr.UploadFailed(err)
	}

	err = s.blobs.Put(ctx, objectPath, reader, f.Size, f.MimeType)
	reader.Close()
	if err != nil {
		session.FailFile(ref, "store blob: "+err.Error())
		return nil, apierr.StorageFailed(err)
	}

	// Stage: persisting
	session.SetStage(ref, progress.StagePersisting)

	img, err := s.images.CreateImage(ctx, postgres.CreateImageParams{
		OwnerID:    ownerID,
		FileName:   f.Name,
		ObjectPath: objectPath,
		SizeBytes:  f.Size,
		MimeType:   f.MimeType,
	})
	if err != nil {
		// Known inconsistency: the blob exists without a record. Accepted
		// rather than rolled back; see DESIGN.md.
		session.FailFile(ref, "create record: "+err.Error())
		return nil, apierr.ImageCreateFailed(err)
	}

	// Stage: analyzing
	session.SetStage(ref, progress.StageAnalyzing)

	if s.captioner == nil {
		// Captioning disabled: the upload still succeeds, the record simply
		// carries no description or tags.
		session.CompleteFile(ref, img)
		return img, nil
	}

	result, err := s.analyze(ctx, objectPath, styleHint)
	if err != nil {
		// The record stays in place without description/tags. Callers retry
		// analysis against the existing record, there is no rollback.
		s.logger.Warn("caption failed",
			slog.String("object_path", objectPath),
			slog.String("error", err.Error()))
		session.FailFile(ref, "analyze image: "+err.Error())
		return nil, apierr.CaptionFailed(err)
	}

	enriched, err := s.images.SetImageCaption(ctx, img.ID, ownerID, result.Description, result.Tags)
	if err != nil {
		session.FailFile(ref, "save caption: "+err.Error())
		return nil, apierr.ImageUpdateFailed(err)
	}

	session.CompleteFile(ref, enriched)
	return enriched, nil
}

func (s *Service) analyze(ctx context.Context, objectPath, styleHint string) (*caption.Result, error) {
	key := caption.CacheKey(objectPath, styleHint)
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, nil
	}

	result, err := s.captioner.Caption(ctx, s.blobs.PublicURL(objectPath), styleHint)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, result); err != nil {
		s.logger.Warn("caption cache write failed", slog.String("error", err.Error()))
	}
	return result, nil
}
