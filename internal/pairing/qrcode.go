// Package pairing renders the server address as a QR code so another device
// can open the notepad by scanning it.
package pairing

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Info is the address a scanning device should open.
type Info struct {
	UI        string `json:"ui"`
	WebSocket string `json:"ws"`
}

// QRGenerator generates QR codes for the server address.
type QRGenerator struct {
	host        string
	port        int
	externalURL string
}

// NewQRGenerator creates a new QR code generator.
func NewQRGenerator(host string, port int) *QRGenerator {
	return &QRGenerator{host: host, port: port}
}

// SetExternalURL overrides the advertised base URL, e.g. behind a reverse
// proxy or port forward.
func (g *QRGenerator) SetExternalURL(url string) {
	g.externalURL = strings.TrimRight(url, "/")
}

// Info returns the advertised addresses.
func (g *QRGenerator) Info() *Info {
	base := g.externalURL
	if base == "" {
		base = "http://" + net.JoinHostPort(g.host, strconv.Itoa(g.port))
	}

	ws := base + "/ws"
	switch {
	case strings.HasPrefix(base, "https://"):
		ws = "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		ws = "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	}

	return &Info{UI: base + "/", WebSocket: ws}
}

// GenerateTerminal generates a QR code of the UI URL for terminal display.
func (g *QRGenerator) GenerateTerminal() (string, error) {
	qr, err := qrcode.New(g.Info().UI, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return qr.ToSmallString(false), nil
}

// GeneratePNG generates a PNG image of the UI URL.
func (g *QRGenerator) GeneratePNG(size int) ([]byte, error) {
	return qrcode.Encode(g.Info().UI, qrcode.Medium, size)
}

// PrintToTerminal writes the QR code and the URL to w.
func (g *QRGenerator) PrintToTerminal(w io.Writer) {
	qrStr, err := g.GenerateTerminal()
	if err != nil {
		fmt.Fprintf(w, "  [Error generating QR code: %v]\n", err)
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Open %s or scan:\n", g.Info().UI)
	fmt.Fprintln(w)
	for _, line := range strings.Split(qrStr, "\n") {
		if line != "" {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	fmt.Fprintln(w)
}
