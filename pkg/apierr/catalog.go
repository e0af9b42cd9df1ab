package apierr

import (
	"fmt"
	"net/http"
)

// --- Common ---

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InvalidID(entity string) *Error {
	return New(CodeInvalidID, http.StatusBadRequest, "Invalid "+entity+" ID")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

// --- Image ---

// ImageNotFound covers both a missing record and a record owned by someone
// else. The two cases are deliberately indistinguishable to the caller.
func ImageNotFound() *Error {
	return New(CodeImageNotFound, http.StatusNotFound, "Image not found or access denied")
}

func ImageCreateFailed(cause error) *Error {
	return Wrap(CodeImageCreateFailed, http.StatusInternalServerError, "Failed to create image record", cause)
}

func ImageUpdateFailed(cause error) *Error {
	return Wrap(CodeImageUpdateFailed, http.StatusInternalServerError, "Failed to update image record", cause)
}

func ImageDeleteFailed(cause error) *Error {
	return Wrap(CodeImageDeleteFailed, http.StatusInternalServerError, "Failed to delete image record", cause)
}

func ImageListFailed(cause error) *Error {
	return Wrap(CodeImageListFailed, http.StatusInternalServerError, "Failed to list images", cause)
}

// --- Upload ---

func NoFiles() *Error {
	return New(CodeNoFiles, http.StatusBadRequest, "At least one file is required (multipart field 'files')")
}

func TooManyFiles(limit int) *Error {
	return New(CodeTooManyFiles, http.StatusBadRequest, fmt.Sprintf("At most %d files per upload batch", limit))
}

func UploadFailed(cause error) *Error {
	return Wrap(CodeUploadFailed, http.StatusInternalServerError, "Failed to upload file", cause)
}

func StorageFailed(cause error) *Error {
	return Wrap(CodeStorageFailed, http.StatusInternalServerError, "Blob storage operation failed", cause)
}

// --- Bulk ---

func EmptyBatch() *Error {
	return New(CodeEmptyBatch, http.StatusBadRequest, "Batch must contain at least one item")
}

func BatchTooLarge(limit int) *Error {
	return New(CodeBatchTooLarge, http.StatusBadRequest, fmt.Sprintf("Batch must contain at most %d items", limit))
}

// --- Caption ---

func CaptionFailed(cause error) *Error {
	return Wrap(CodeCaptionFailed, http.StatusInternalServerError, "Image captioning failed", cause)
}

func CaptioningDisabled() *Error {
	return New(CodeCaptioningDisabled, http.StatusServiceUnavailable, "Captioning is not configured")
}

// --- Progress session ---

func SessionNotFound() *Error {
	return New(CodeSessionNotFound, http.StatusNotFound, "Session not found")
}

// --- Health ---

func DatabaseNotReady() *Error {
	return New(CodeDatabaseNotReady, http.StatusServiceUnavailable, "Database not ready")
}
