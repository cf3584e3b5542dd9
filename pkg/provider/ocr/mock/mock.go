// Package mock provides test doubles for the ocr package interfaces.
//
// Use Provider to return canned per-frame strings and to inspect which
// images were submitted.
//
// Example:
//
//	p := &mock.Provider{Frames: [][]string{{"Call 555-123-4567"}}}
//	texts, _ := p.Recognize(ctx, ocr.Image{Data: png})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/phonescan/pkg/provider/ocr"
)

// RecognizeCall records a single invocation of Provider.Recognize.
type RecognizeCall struct {
	// Ctx is the context passed to Recognize.
	Ctx context.Context
	// Image is a copy of the image passed to Recognize.
	Image ocr.Image
}

// Provider is a mock implementation of ocr.Provider.
type Provider struct {
	mu sync.Mutex

	// Frames are returned one per call, in order. Once exhausted, Recognize
	// returns nil.
	Frames [][]string

	// RecognizeErr, if non-nil, is returned by every Recognize call.
	RecognizeErr error

	// RecognizeCalls records every call to Recognize.
	RecognizeCalls []RecognizeCall
}

// Recognize records the call and returns the next entry of Frames.
func (p *Provider) Recognize(ctx context.Context, img ocr.Image) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := make([]byte, len(img.Data))
	copy(data, img.Data)
	p.RecognizeCalls = append(p.RecognizeCalls, RecognizeCall{
		Ctx:   ctx,
		Image: ocr.Image{Data: data, ContentType: img.ContentType},
	})

	if p.RecognizeErr != nil {
		return nil, p.RecognizeErr
	}
	if len(p.Frames) == 0 {
		return nil, nil
	}
	next := p.Frames[0]
	p.Frames = p.Frames[1:]
	return next, nil
}

// CallCount returns the number of Recognize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.RecognizeCalls)
}

// Ensure Provider implements ocr.Provider at compile time.
var _ ocr.Provider = (*Provider)(nil)
