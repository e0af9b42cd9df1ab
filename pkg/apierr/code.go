package apierr

// Code is a machine-readable error code returned in API responses.
type Code string

// Common errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInvalidID          Code = "INVALID_ID"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Image errors.
const (
	CodeImageNotFound     Code = "IMAGE_NOT_FOUND"
	CodeImageCreateFailed Code = "IMAGE_CREATE_FAILED"
	CodeImageUpdateFailed Code = "IMAGE_UPDATE_FAILED"
	CodeImageDeleteFailed Code = "IMAGE_DELETE_FAILED"
	CodeImageListFailed   Code = "IMAGE_LIST_FAILED"
)

// Upload errors.
const (
	CodeNoFiles       Code = "NO_FILES"
	CodeTooManyFiles  Code = "TOO_MANY_FILES"
	CodeUploadFailed  Code = "UPLOAD_FAILED"
	CodeStorageFailed Code = "STORAGE_FAILED"
)

// Bulk operation errors.
const (
	CodeEmptyBatch    Code = "EMPTY_BATCH"
	CodeBatchTooLarge Code = "BATCH_TOO_LARGE"
)

// Caption errors.
const (
	CodeCaptionFailed      Code = "CAPTION_FAILED"
	CodeCaptioningDisabled Code = "CAPTIONING_DISABLED"
)

// Progress session errors.
const (
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
)

// Health errors.
const (
	CodeDatabaseNotReady Code = "DATABASE_NOT_READY"
)
