package domain

import "time"

// Upload is the scratch copy of an image received from the client. It only
// lives for the duration of the request that created it.
type Upload struct {
	Path     string
	MIMEType string
	Filename string
	Size     int64
}

// Submission pairs the visual description with its uploaded photo.
type Submission struct {
	Prompt string
	Upload *Upload
}

// Artifact represents a finished, watermarked image persisted for download.
type Artifact struct {
	ID        string
	Path      string
	MIMEType  string
	Bytes     int64
	CreatedAt time.Time
}

// Filename is the human-friendly name suggested to downloaders.
func (a Artifact) Filename() string {
	return DownloadFilename(a.ID)
}

// DownloadFilename builds the attachment filename for an artifact id.
func DownloadFilename(id string) string {
	return "photobooth-" + id + ".png"
}
