package upload

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"photobooth/internal/domain"
)

const (
	FieldImage  = "image"
	FieldPrompt = "prompt"

	// DefaultMaxBytes is the per-image limit (5 MiB).
	DefaultMaxBytes int64 = 5 * 1024 * 1024

	formSlack      int64 = 1 << 20
	maxPromptBytes int64 = 64 * 1024
)

var allowedTypes = map[string]string{
	"image/jpeg": "image/jpeg",
	"image/jpg":  "image/jpeg",
	"image/png":  "image/png",
	"image/webp": "image/webp",
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Receiver accepts the photobooth multipart form and stages the photo in a
// scratch directory.
type Receiver struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewReceiver creates a Receiver writing into dir.
func NewReceiver(dir string, maxBytes int64) (*Receiver, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("upload: scratch directory is required")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: ensure scratch directory: %w", err)
	}
	return &Receiver{dir: dir, maxBytes: maxBytes, now: time.Now}, nil
}

// Dir returns the scratch directory.
func (rc *Receiver) Dir() string { return rc.dir }

// MaxBytes returns the per-image size limit.
func (rc *Receiver) MaxBytes() int64 { return rc.maxBytes }

// Receive streams the multipart body of r. On success the returned
// submission owns a scratch file which the caller must Remove. On failure no
// scratch file is left behind.
func (rc *Receiver) Receive(w http.ResponseWriter, r *http.Request) (sub *domain.Submission, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, rc.maxBytes+formSlack)
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidUpload, err)
	}

	var (
		prompt   string
		upload   *domain.Upload
		hasImage bool
	)
	defer func() {
		if err != nil && upload != nil {
			_ = Remove(upload)
		}
	}()

	for {
		part, perr := reader.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			return nil, classifyReadError(perr)
		}

		switch part.FormName() {
		case FieldPrompt:
			value, rerr := io.ReadAll(io.LimitReader(part, maxPromptBytes+1))
			part.Close()
			if rerr != nil {
				return nil, classifyReadError(rerr)
			}
			if int64(len(value)) > maxPromptBytes {
				return nil, fmt.Errorf("%w: prompt exceeds %d bytes", domain.ErrInvalidUpload, maxPromptBytes)
			}
			prompt = strings.TrimSpace(string(value))
		case FieldImage:
			if hasImage {
				part.Close()
				return nil, fmt.Errorf("%w: more than one image", domain.ErrInvalidUpload)
			}
			hasImage = true
			upload, err = rc.stage(part)
			part.Close()
			if err != nil {
				return nil, err
			}
		default:
			part.Close()
		}
	}

	if prompt == "" {
		return nil, domain.ErrPromptRequired
	}
	if upload == nil {
		return nil, domain.ErrImageRequired
	}
	return &domain.Submission{Prompt: prompt, Upload: upload}, nil
}

func (rc *Receiver) stage(part *multipart.Part) (*domain.Upload, error) {
	if part.FileName() == "" {
		return nil, domain.ErrImageRequired
	}
	mimeType, ok := normalizeType(part.Header.Get("Content-Type"))
	if !ok {
		return nil, fmt.Errorf("%w: got %q", domain.ErrUnsupportedMedia, part.Header.Get("Content-Type"))
	}

	original := sanitizeFilename(part.FileName())
	f, err := os.CreateTemp(rc.dir, fmt.Sprintf("%d-*-%s", rc.now().UnixMilli(), original))
	if err != nil {
		return nil, fmt.Errorf("upload: create scratch file: %w", err)
	}
	up := &domain.Upload{Path: f.Name(), MIMEType: mimeType, Filename: original}

	n, err := io.Copy(f, io.LimitReader(part, rc.maxBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = Remove(up)
		return nil, classifyReadError(err)
	}
	if n > rc.maxBytes {
		_ = Remove(up)
		return nil, domain.ErrUploadTooLarge
	}
	if n == 0 {
		_ = Remove(up)
		return nil, domain.ErrImageRequired
	}
	up.Size = n
	return up, nil
}

// Read loads the staged bytes.
func Read(up *domain.Upload) ([]byte, error) {
	if up == nil {
		return nil, domain.ErrImageRequired
	}
	data, err := os.ReadFile(up.Path)
	if err != nil {
		return nil, fmt.Errorf("upload: read scratch file: %w", err)
	}
	return data, nil
}

// Remove deletes the scratch file. It is safe to call more than once.
func Remove(up *domain.Upload) error {
	if up == nil || up.Path == "" {
		return nil
	}
	if err := os.Remove(up.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("upload: remove scratch file: %w", err)
	}
	return nil
}

func normalizeType(header string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", false
	}
	normalized, ok := allowedTypes[strings.ToLower(mediaType)]
	return normalized, ok
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	if len(name) > 64 {
		name = name[len(name)-64:]
	}
	return name
}

func classifyReadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return domain.ErrUploadTooLarge
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidUpload, err)
}
