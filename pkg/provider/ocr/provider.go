// Package ocr defines the Provider interface for text-recognition backends.
//
// A provider turns one captured camera frame into the raw strings it could
// read, typically one string per detected line of text. Recognition quality
// is not assumed: strings are noisy and commonly confuse visually similar
// glyphs. Downstream code (the phone and stabilize packages) deals with that.
//
// Implementations must be safe for concurrent use.
package ocr

import (
	"context"
	"errors"
)

// ErrNoRecognizer is returned by callers that receive image data while no
// provider is configured.
var ErrNoRecognizer = errors.New("ocr: no recognizer configured")

// Image is one encoded frame.
type Image struct {
	// Data holds the encoded image bytes (PNG, JPEG, ...).
	Data []byte

	// ContentType is the MIME type of Data, e.g. "image/png". May be empty
	// when unknown; providers that need it fall back to sniffing.
	ContentType string
}

// Provider is the abstraction over any OCR backend.
type Provider interface {
	// Recognize returns the strings read from img. An empty, nil-error
	// result means the frame contained no readable text, which is a normal
	// outcome.
	Recognize(ctx context.Context, img Image) ([]string, error)
}
