// Package tesseract provides an ocr.Provider backed by the tesseract CLI.
//
// Each frame is piped to `tesseract stdin stdout` and every non-blank output
// line becomes one recognized string. Page segmentation mode 11 (sparse
// text) is the default because phone numbers on signs and cards rarely form
// paragraphs.
//
// Usage:
//
//	p := tesseract.New(tesseract.WithLanguage("eng"), tesseract.WithPSM(6))
//	texts, err := p.Recognize(ctx, ocr.Image{Data: png})
package tesseract

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/phonescan/pkg/provider/ocr"
)

const (
	defaultBinary   = "tesseract"
	defaultLanguage = "eng"
	defaultPSM      = 11
)

var _ ocr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBinary sets the tesseract executable. Defaults to "tesseract" on PATH.
func WithBinary(path string) Option {
	return func(p *Provider) {
		if path != "" {
			p.binary = path
		}
	}
}

// WithLanguage sets the -l argument (e.g. "eng", "eng+deu").
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		if lang != "" {
			p.language = lang
		}
	}
}

// WithPSM sets the page segmentation mode. Zero keeps the default.
func WithPSM(psm int) Option {
	return func(p *Provider) {
		if psm > 0 {
			p.psm = psm
		}
	}
}

// WithTessdataDir sets --tessdata-dir.
func WithTessdataDir(dir string) Option {
	return func(p *Provider) {
		p.tessdataDir = dir
	}
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(p *Provider) {
		p.runner = r
	}
}

// Provider runs tesseract once per frame.
type Provider struct {
	binary      string
	language    string
	psm         int
	tessdataDir string
	runner      Runner
}

// New creates a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		binary:   defaultBinary,
		language: defaultLanguage,
		psm:      defaultPSM,
		runner:   ExecRunner{},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Args returns the command-line arguments passed to tesseract.
func (p *Provider) Args() []string {
	args := []string{"stdin", "stdout", "-l", p.language, "--psm", strconv.Itoa(p.psm)}
	if p.tessdataDir != "" {
		args = append(args, "--tessdata-dir", p.tessdataDir)
	}
	return args
}

// Recognize implements [ocr.Provider].
func (p *Provider) Recognize(ctx context.Context, img ocr.Image) ([]string, error) {
	if len(img.Data) == 0 {
		return nil, errors.New("tesseract: empty image")
	}
	out, errb, err := p.runner.Run(ctx, img.Data, p.binary, p.Args()...)
	if err != nil {
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return nil, fmt.Errorf("tesseract: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("tesseract: %w", err)
	}
	return splitLines(out), nil
}

// splitLines returns the trimmed non-blank lines of out. Tesseract ends each
// page with a form feed, which is dropped.
func splitLines(out []byte) []string {
	var lines []string
	for line := range strings.Lines(string(out)) {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\f", ""))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
