package upload

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"photobooth/internal/domain"
)

type formFile struct {
	name        string
	contentType string
	data        []byte
}

func newMultipartRequest(t *testing.T, prompt *string, files ...formFile) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldImage, f.name))
		h.Set("Content-Type", f.contentType)
		pw, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := pw.Write(f.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if prompt != nil {
		if err := mw.WriteField(FieldPrompt, *prompt); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/generate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func strPtr(s string) *string { return &s }

func scratchFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestReceiveAcceptsValidUpload(t *testing.T) {
	dir := t.TempDir()
	rc, err := NewReceiver(dir, 1024)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	req := newMultipartRequest(t, strPtr("  astronaut portrait  "), formFile{name: "../me photo.JPG", contentType: "image/jpg", data: []byte("jpeg-bytes")})

	sub, err := rc.Receive(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if sub.Prompt != "astronaut portrait" {
		t.Fatalf("prompt mismatch: %q", sub.Prompt)
	}
	if sub.Upload.MIMEType != "image/jpeg" {
		t.Fatalf("mime mismatch: %q", sub.Upload.MIMEType)
	}
	if sub.Upload.Size != int64(len("jpeg-bytes")) {
		t.Fatalf("size mismatch: %d", sub.Upload.Size)
	}
	if filepath.Dir(sub.Upload.Path) != dir {
		t.Fatalf("scratch file outside dir: %s", sub.Upload.Path)
	}
	if !strings.HasSuffix(sub.Upload.Path, "me_photo.JPG") {
		t.Fatalf("scratch name should keep sanitized original name: %s", sub.Upload.Path)
	}
	data, err := Read(sub.Upload)
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("Read = %q, %v", data, err)
	}
	if err := Remove(sub.Upload); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := Remove(sub.Upload); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	if names := scratchFiles(t, dir); len(names) != 0 {
		t.Fatalf("scratch dir not empty: %v", names)
	}
}

func TestReceiveRejectsAndCleansUp(t *testing.T) {
	png := formFile{name: "photo.png", contentType: "image/png", data: []byte("png-bytes")}
	tests := []struct {
		name    string
		prompt  *string
		files   []formFile
		wantErr error
	}{
		{name: "missing prompt", files: []formFile{png}, wantErr: domain.ErrPromptRequired},
		{name: "blank prompt", prompt: strPtr("   "), files: []formFile{png}, wantErr: domain.ErrPromptRequired},
		{name: "missing image", prompt: strPtr("test"), wantErr: domain.ErrImageRequired},
		{name: "empty image", prompt: strPtr("test"), files: []formFile{{name: "a.png", contentType: "image/png"}}, wantErr: domain.ErrImageRequired},
		{name: "gif rejected", prompt: strPtr("test"), files: []formFile{{name: "a.gif", contentType: "image/gif", data: []byte("gif")}}, wantErr: domain.ErrUnsupportedMedia},
		{name: "octet stream rejected", prompt: strPtr("test"), files: []formFile{{name: "a.png", contentType: "application/octet-stream", data: []byte("x")}}, wantErr: domain.ErrUnsupportedMedia},
		{name: "oversized", prompt: strPtr("test"), files: []formFile{{name: "big.webp", contentType: "image/webp", data: bytes.Repeat([]byte{1}, 65)}}, wantErr: domain.ErrUploadTooLarge},
		{name: "two images", prompt: strPtr("test"), files: []formFile{png, png}, wantErr: domain.ErrInvalidUpload},
		{name: "oversized prompt", prompt: strPtr(strings.Repeat("a", int(maxPromptBytes)+1)), files: []formFile{png}, wantErr: domain.ErrInvalidUpload},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			rc, err := NewReceiver(dir, 64)
			if err != nil {
				t.Fatalf("NewReceiver: %v", err)
			}
			req := newMultipartRequest(t, tc.prompt, tc.files...)
			sub, err := rc.Receive(httptest.NewRecorder(), req)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Receive error = %v, want %v", err, tc.wantErr)
			}
			if sub != nil {
				t.Fatalf("expected nil submission")
			}
			if !domain.IsValidation(err) {
				t.Fatalf("error %v should be a validation error", err)
			}
			if names := scratchFiles(t, dir); len(names) != 0 {
				t.Fatalf("scratch file leaked: %v", names)
			}
		})
	}
}

func TestReceiveKeepsPromptAtLimit(t *testing.T) {
	rc, err := NewReceiver(t.TempDir(), 64)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	prompt := strings.Repeat("b", int(maxPromptBytes))
	req := newMultipartRequest(t, &prompt, formFile{name: "p.png", contentType: "image/png", data: []byte("png")})
	sub, err := rc.Receive(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	defer Remove(sub.Upload)
	if sub.Prompt != prompt {
		t.Fatalf("prompt length = %d, want %d", len(sub.Prompt), len(prompt))
	}
}

func TestReceiveRejectsNonMultipart(t *testing.T) {
	rc, err := NewReceiver(t.TempDir(), 64)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"prompt":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	if _, err := rc.Receive(httptest.NewRecorder(), req); !errors.Is(err, domain.ErrInvalidUpload) {
		t.Fatalf("Receive error = %v, want ErrInvalidUpload", err)
	}
}

func TestReceiveConcurrentSameNameDoesNotCollide(t *testing.T) {
	dir := t.TempDir()
	rc, err := NewReceiver(dir, 1024)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	var paths []string
	for i := 0; i < 5; i++ {
		req := newMultipartRequest(t, strPtr("test"), formFile{name: "photo.png", contentType: "image/png", data: []byte("png")})
		sub, err := rc.Receive(httptest.NewRecorder(), req)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		paths = append(paths, sub.Upload.Path)
	}
	seen := make(map[string]struct{})
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			t.Fatalf("duplicate scratch path %s", p)
		}
		seen[p] = struct{}{}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"photo.png":          "photo.png",
		"../../etc/passwd":   "passwd",
		`C:\Users\me\a b.jpg`: "a_b.jpg",
		"...":                "upload",
		"":                   "upload",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
