package scancode

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// Renderer decides who renders the scannable code for a download URL.
// An empty result means the client is expected to encode the URL itself.
type Renderer interface {
	Mode() string
	Render(downloadURL string) (string, error)
}

// New returns the renderer for mode ("client" or "server").
func New(mode string, size int) (Renderer, error) {
	switch mode {
	case "", "client":
		return ClientSide{}, nil
	case "server":
		if size <= 0 {
			size = 256
		}
		return ServerSide{Size: size, Level: qrcode.Medium}, nil
	default:
		return nil, fmt.Errorf("scancode: unknown renderer %q", mode)
	}
}

// ClientSide leaves rendering to the browser.
type ClientSide struct{}

func (ClientSide) Mode() string { return "client" }

func (ClientSide) Render(string) (string, error) { return "", nil }

// ServerSide renders a PNG QR code and returns it as a data URI.
type ServerSide struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func (ServerSide) Mode() string { return "server" }

func (s ServerSide) Render(downloadURL string) (string, error) {
	png, err := qrcode.Encode(downloadURL, s.Level, s.Size)
	if err != nil {
		return "", fmt.Errorf("scancode: encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
