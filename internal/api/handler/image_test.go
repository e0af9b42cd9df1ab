package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maraichr/pictor/internal/caption"
	"github.com/maraichr/pictor/internal/store/postgres"
	"github.com/maraichr/pictor/pkg/apierr"
)

// failingCaptionCache always misses and rejects writes.
type failingCaptionCache struct {
	setCalls int
}

func (c *failingCaptionCache) Get(ctx context.Context, digest string) (*caption.Result, bool) {
	return nil, false
}

func (c *failingCaptionCache) Set(ctx context.Context, digest string, r *caption.Result) error {
	c.setCalls++
	return errors.New("valkey down")
}

// withURLParam injects a chi route parameter for handlers invoked outside a
// router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestImageGet(t *testing.T) {
	store := newFakeImageStore()
	owner := uuid.New()
	img := store.add(owner, "cat.jpg")

	h := NewImageHandler(testLogger(), store, nil, nil, nil)

	req := withURLParam(authedRequest(t, owner, http.MethodGet, "/api/v1/images/"+img.ID.String(), nil), "id", img.ID.String())
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got postgres.Image
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != img.ID || got.FileName != "cat.jpg" {
		t.Errorf("got %+v", got)
	}
}

func TestImageGet_ForeignOwnerIsNotFound(t *testing.T) {
	store := newFakeImageStore()
	img := store.add(uuid.New(), "secret.jpg")

	h := NewImageHandler(testLogger(), store, nil, nil, nil)

	req := withURLParam(authedRequest(t, uuid.New(), http.MethodGet, "/api/v1/images/"+img.ID.String(), nil), "id", img.ID.String())
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for foreign record", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != apierr.CodeImageNotFound {
		t.Errorf("code = %q, want IMAGE_NOT_FOUND", code)
	}
}

func TestImageGet_InvalidID(t *testing.T) {
	h := NewImageHandler(testLogger(), newFakeImageStore(), nil, nil, nil)

	req := withURLParam(authedRequest(t, uuid.New(), http.MethodGet, "/api/v1/images/xyz", nil), "id", "xyz")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestImageUpdate_PatchSemantics(t *testing.T) {
	store := newFakeImageStore()
	owner := uuid.New()
	img := store.add(owner, "orig.jpg")

	h := NewImageHandler(testLogger(), store, nil, nil, nil)

	desc := "a description"
	req := withURLParam(authedRequest(t, owner, http.MethodPatch, "/api/v1/images/"+img.ID.String(),
		map[string]any{"description": desc}), "id", img.ID.String())
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got, _ := store.GetImage(context.Background(), img.ID, owner)
	if got.Description == nil || *got.Description != desc {
		t.Errorf("description not set: %+v", got.Description)
	}
	if got.FileName != "orig.jpg" {
		t.Errorf("omitted file_name changed to %q", got.FileName)
	}
}

func TestImageDelete_RemovesRecordAndBlob(t *testing.T) {
	store := newFakeImageStore()
	blobs := &fakeBlobStore{}
	owner := uuid.New()
	img := store.add(owner, "gone.jpg")

	h := NewImageHandler(testLogger(), store, blobs, nil, nil)

	req := withURLParam(authedRequest(t, owner, http.MethodDelete, "/api/v1/images/"+img.ID.String(), nil), "id", img.ID.String())
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if store.count() != 0 {
		t.Error("record not deleted")
	}
	blobs.mu.Lock()
	defer blobs.mu.Unlock()
	if len(blobs.removed) != 1 || blobs.removed[0] != img.ObjectPath {
		t.Errorf("blob removal = %v, want [%s]", blobs.removed, img.ObjectPath)
	}
}

func TestImageDelete_Idempotent(t *testing.T) {
	store := newFakeImageStore()
	h := NewImageHandler(testLogger(), store, nil, nil, nil)

	id := uuid.NewString()
	req := withURLParam(authedRequest(t, uuid.New(), http.MethodDelete, "/api/v1/images/"+id, nil), "id", id)
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for already-gone record", rec.Code)
	}
}

func TestImageRecaption(t *testing.T) {
	store := newFakeImageStore()
	owner := uuid.New()
	img := store.add(owner, "pic.jpg")

	h := NewImageHandler(testLogger(), store, &fakeBlobStore{}, &fakeCaptioner{}, nil)

	req := withURLParam(authedRequest(t, owner, http.MethodPost, "/api/v1/images/"+img.ID.String()+"/recaption",
		map[string]any{"style_hint": "haiku"}), "id", img.ID.String())
	rec := httptest.NewRecorder()
	h.Recaption(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	var got postgres.Image
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Description == nil || len(got.Tags) == 0 {
		t.Errorf("record not enriched: %+v", got)
	}
}

func TestImageRecaption_Disabled(t *testing.T) {
	store := newFakeImageStore()
	owner := uuid.New()
	img := store.add(owner, "pic.jpg")

	h := NewImageHandler(testLogger(), store, &fakeBlobStore{}, nil, nil)

	req := withURLParam(authedRequest(t, owner, http.MethodPost, "/api/v1/images/"+img.ID.String()+"/recaption", nil), "id", img.ID.String())
	rec := httptest.NewRecorder()
	h.Recaption(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestImageList(t *testing.T) {
	store := newFakeImageStore()
	owner := uuid.New()
	store.add(owner, "a.jpg")
	store.add(owner, "b.jpg")
	store.add(uuid.New(), "foreign.jpg")

	h := NewImageHandler(testLogger(), store, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest(t, owner, http.MethodGet, "/api/v1/images", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Images []postgres.Image `json:"images"`
		Total  int64            `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Images) != 2 || resp.Total != 2 {
		t.Errorf("images=%d total=%d, want 2/2", len(resp.Images), resp.Total)
	}
}

func TestImageList_NegativeOffsetClamped(t *testing.T) {
	store := newFakeImageStore()
	owner := uuid.New()
	store.add(owner, "a.jpg")

	h := NewImageHandler(testLogger(), store, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.List(rec, authedRequest(t, owner, http.MethodGet, "/api/v1/images?offset=-5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	if store.lastOffset != 0 {
		t.Errorf("offset passed to store = %d, want 0", store.lastOffset)
	}
}

func TestImageRecaption_CacheWriteFailureIsNonFatal(t *testing.T) {
	store := newFakeImageStore()
	owner := uuid.New()
	img := store.add(owner, "pic.jpg")
	cache := &failingCaptionCache{}

	h := NewImageHandler(testLogger(), store, &fakeBlobStore{}, &fakeCaptioner{}, cache)

	req := withURLParam(authedRequest(t, owner, http.MethodPost, "/api/v1/images/"+img.ID.String()+"/recaption", nil), "id", img.ID.String())
	rec := httptest.NewRecorder()
	h.Recaption(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	if cache.setCalls != 1 {
		t.Errorf("cache Set calls = %d, want 1", cache.setCalls)
	}
	var got postgres.Image
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Description == nil || len(got.Tags) == 0 {
		t.Errorf("record not enriched: %+v", got)
	}
}
