package inventory

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	onvif "github.com/quocson95/onvif-inventory"
	"github.com/quocson95/onvif-inventory/credentials"
	"github.com/quocson95/onvif-inventory/discovery"
)

// Format selects how a Printer writes results.
type Format string

const (
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "tsv" and "json".
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q, want tsv or json", s)
}

// Printer writes one line per stream result. All lines of one device are
// written together, never interleaved with another device's.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
}

func NewPrinter(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

type streamRecord struct {
	Device  string `json:"device"`
	Address string `json:"address"`
	User    string `json:"user"`
	Profile string `json:"profile"`
	Token   string `json:"token"`
	URI     string `json:"uri"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	FPS     *int   `json:"fps,omitempty"`
}

// Print writes the results of device, which answered to candidate.
func (p *Printer) Print(device discovery.Device, candidate credentials.Candidate, results []onvif.StreamResult) error {
	var b strings.Builder
	for _, r := range results {
		if p.format == FormatJSON {
			rec := streamRecord{
				Device:  device.Name,
				Address: device.BaseAddress(),
				User:    candidate.String(),
				Profile: r.ProfileName,
				Token:   r.ProfileToken,
				URI:     r.URI,
				FPS:     r.FrameRate,
			}
			if r.Resolution != nil {
				rec.Width, rec.Height = r.Resolution.Width, r.Resolution.Height
			}
			line, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			b.Write(line)
		} else {
			b.WriteString(r.String())
		}
		b.WriteByte('\n')
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := io.WriteString(p.w, b.String())
	return err
}
