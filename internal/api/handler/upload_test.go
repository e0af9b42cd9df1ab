package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/pictor/internal/auth"
	"github.com/maraichr/pictor/internal/progress"
	"github.com/maraichr/pictor/internal/uploader"
	"github.com/maraichr/pictor/pkg/apierr"
)

// gatedBlobStore blocks every Put until released, keeping a batch in flight
// for as long as the test needs.
type gatedBlobStore struct {
	release chan struct{}
}

func (b *gatedBlobStore) Put(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error {
	<-b.release
	_, err := io.Copy(io.Discard, reader)
	return err
}

func (b *gatedBlobStore) Remove(ctx context.Context, objectPath string) error { return nil }

func (b *gatedBlobStore) PublicURL(objectPath string) string { return "http://blobs.test/" + objectPath }

func multipartBody(t *testing.T, fileNames ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range fileNames {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write([]byte("fake image bytes")); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, owner uuid.UUID, fileNames ...string) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, fileNames...)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	return req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{
		Sub:    owner.String(),
		UserID: owner,
	}))
}

func TestUploadStart_RespondsBeforeBatchFinishes(t *testing.T) {
	blobs := &gatedBlobStore{release: make(chan struct{})}
	store := newFakeImageStore()
	registry := progress.NewRegistry(time.Minute, testLogger())
	svc := uploader.New(testLogger(), blobs, store, nil, nil, registry, 2)

	h := NewUploadHandler(testLogger(), svc, testLimits())

	rec := httptest.NewRecorder()
	h.Start(rec, uploadRequest(t, uuid.New(), "a.jpg", "b.jpg"))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body)
	}

	var resp struct {
		SessionID  string `json:"session_id"`
		TotalFiles int    `json:"total_files"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalFiles != 2 {
		t.Errorf("total_files = %d, want 2", resp.TotalFiles)
	}

	// The response arrived while every pipeline is still gated; the session
	// must already be resolvable and non-terminal.
	session, ok := registry.Get(resp.SessionID)
	if !ok {
		t.Fatal("session not registered at response time")
	}
	if session.Terminal() {
		t.Fatal("batch finished before the response was written")
	}

	close(blobs.release)
	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("batch never finished after release")
	}

	if store.count() != 2 {
		t.Errorf("records = %d, want 2", store.count())
	}
}

// capturingBlobStore records the bytes written for each object path.
type capturingBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *capturingBlobStore) Put(ctx context.Context, objectPath string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[objectPath] = data
	return nil
}

func (b *capturingBlobStore) Remove(ctx context.Context, objectPath string) error { return nil }

func (b *capturingBlobStore) PublicURL(objectPath string) string {
	return "http://blobs.test/" + objectPath
}

func TestUploadStart_StreamsFileBytesToBlobStore(t *testing.T) {
	blobs := &capturingBlobStore{}
	registry := progress.NewRegistry(time.Minute, testLogger())
	svc := uploader.New(testLogger(), blobs, newFakeImageStore(), nil, nil, registry, 1)
	h := NewUploadHandler(testLogger(), svc, testLimits())

	content := []byte("jpeg payload for photo.jpg")
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	owner := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{
		Sub:    owner.String(),
		UserID: owner,
	}))

	rec := httptest.NewRecorder()
	h.Start(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body)
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	session, ok := registry.Get(resp.SessionID)
	if !ok {
		t.Fatal("session not registered")
	}
	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("batch never finished")
	}

	blobs.mu.Lock()
	defer blobs.mu.Unlock()
	if len(blobs.objects) != 1 {
		t.Fatalf("objects stored = %d, want 1", len(blobs.objects))
	}
	for path, data := range blobs.objects {
		if !bytes.Equal(data, content) {
			t.Errorf("stored bytes for %s = %q, want %q", path, data, content)
		}
	}
}

func TestUploadStart_MalformedBody(t *testing.T) {
	registry := progress.NewRegistry(time.Minute, testLogger())
	svc := uploader.New(testLogger(), &gatedBlobStore{release: make(chan struct{})}, newFakeImageStore(), nil, nil, registry, 1)
	h := NewUploadHandler(testLogger(), svc, testLimits())

	owner := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/images/uploads", bytes.NewBufferString(`{"not":"multipart"}`))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{
		Sub:    owner.String(),
		UserID: owner,
	}))

	rec := httptest.NewRecorder()
	h.Start(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != apierr.CodeInvalidRequestBody {
		t.Errorf("code = %q, want INVALID_REQUEST_BODY", code)
	}
	if registry.Len() != 0 {
		t.Error("no session may be created for a rejected batch")
	}
}

func TestUploadStart_NoFiles(t *testing.T) {
	registry := progress.NewRegistry(time.Minute, testLogger())
	svc := uploader.New(testLogger(), &gatedBlobStore{release: make(chan struct{})}, newFakeImageStore(), nil, nil, registry, 1)
	h := NewUploadHandler(testLogger(), svc, testLimits())

	rec := httptest.NewRecorder()
	h.Start(rec, uploadRequest(t, uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != apierr.CodeNoFiles {
		t.Errorf("code = %q, want NO_FILES", code)
	}
	if registry.Len() != 0 {
		t.Error("no session may be created for a rejected batch")
	}
}

func TestUploadStart_TooManyFiles(t *testing.T) {
	limits := testLimits()
	limits.MaxUploadFiles = 2

	registry := progress.NewRegistry(time.Minute, testLogger())
	svc := uploader.New(testLogger(), &gatedBlobStore{release: make(chan struct{})}, newFakeImageStore(), nil, nil, registry, 1)
	h := NewUploadHandler(testLogger(), svc, limits)

	rec := httptest.NewRecorder()
	h.Start(rec, uploadRequest(t, uuid.New(), "a.jpg", "b.jpg", "c.jpg"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != apierr.CodeTooManyFiles {
		t.Errorf("code = %q, want TOO_MANY_FILES", code)
	}
}
