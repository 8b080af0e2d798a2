package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidID         = errors.New("invalid artifact id")
	ErrPromptRequired    = errors.New("a visual description is mandatory")
	ErrImageRequired     = errors.New("an image is required")
	ErrUnsupportedMedia  = errors.New("unsupported image type, only jpeg, png and webp are allowed")
	ErrUploadTooLarge    = errors.New("image exceeds the maximum upload size")
	ErrInvalidUpload     = errors.New("invalid multipart payload")
	ErrCredentialMissing = errors.New("generation credential is not configured")
	ErrProviderFailure   = errors.New("provider failure")
	ErrNoImageProduced   = errors.New("no image produced")
	ErrProcessing        = errors.New("image processing failed")
)

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrPromptRequired) ||
		errors.Is(err, ErrImageRequired) ||
		errors.Is(err, ErrUnsupportedMedia) ||
		errors.Is(err, ErrUploadTooLarge) ||
		errors.Is(err, ErrInvalidUpload)
}
