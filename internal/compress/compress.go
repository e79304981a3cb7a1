// Package compress implements the threshold-gated gzip compression of
// spec.md §4.8, using klauspost/compress's streaming gzip writer (already
// an indirect dependency of the pack via fiber; promoted here to direct,
// exercised use) the same way apps'-receiver-adjacent
// other_examples/PilotFiber-icmp-mon shipper.go gzips a batch before
// POSTing it and apps/cli/internal/update/update.go streams gzip when
// extracting release archives.
package compress

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/klauspost/compress/gzip"
)

// Result carries the encoded body and the headers the transport must set.
type Result struct {
	Body            []byte
	ContentType     string
	ContentEncoding string // empty when not gzip-encoded
}

// Compressor gzips payloads at or above threshold bytes; smaller payloads
// pass through untouched.
type Compressor struct {
	enabled   bool
	threshold int

	// streamingUnavailable simulates a platform lacking streaming gzip,
	// for the base64-fallback path spec.md §4.8 describes — the module
	// always has real gzip available, so production code never sets
	// this; it exists for ForceFallback in tests.
	streamingUnavailable bool
}

// New creates a Compressor. threshold is the UTF-8 byte-length floor
// (spec.md's `compressionThreshold`, default 1024) at or above which gzip
// is applied.
func New(enabled bool, threshold int) *Compressor {
	return &Compressor{enabled: enabled, threshold: threshold}
}

// ForceFallback disables the streaming-gzip path, exercising the
// equivalent-ratio-free base64 fallback spec'd for platforms without
// native streaming compression.
func (c *Compressor) ForceFallback(v bool) {
	c.streamingUnavailable = v
}

// Compress encodes body per spec.md §4.8: gzip at or above threshold when
// enabled and streaming gzip is available; base64 when enabled but
// streaming is unavailable; pass-through otherwise.
func (c *Compressor) Compress(body []byte) (Result, error) {
	if !c.enabled || len(body) < c.threshold {
		return Result{Body: body, ContentType: "application/json"}, nil
	}

	if c.streamingUnavailable {
		encoded := base64.StdEncoding.EncodeToString(body)
		return Result{Body: []byte(encoded), ContentType: "application/json"}, nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(body); err != nil {
		return Result{}, fmt.Errorf("compress: gzip write: %w", err)
	}
	if err := gz.Close(); err != nil {
		return Result{}, fmt.Errorf("compress: gzip close: %w", err)
	}
	return Result{
		Body:            buf.Bytes(),
		ContentType:     "application/octet-stream",
		ContentEncoding: "gzip",
	}, nil
}
