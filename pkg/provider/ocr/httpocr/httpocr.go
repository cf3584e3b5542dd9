// Package httpocr provides an ocr.Provider that delegates recognition to a
// remote HTTP service.
//
// The image is uploaded as multipart/form-data to POST {baseURL}/v1/ocr in
// the "image" field. The service answers with:
//
//	{"texts": ["line one", "line two"]}
//
// Usage:
//
//	p, err := httpocr.New("http://ocr.internal:8080", httpocr.WithAPIKey(key))
//	texts, err := p.Recognize(ctx, ocr.Image{Data: jpeg, ContentType: "image/jpeg"})
package httpocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/MrWong99/phonescan/pkg/provider/ocr"
)

const (
	endpointPath   = "/v1/ocr"
	defaultTimeout = 10 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

var _ ocr.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) Option {
	return func(p *Provider) {
		p.apiKey = key
	}
}

// WithModel forwards a model name in the "model" form field.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage forwards a language hint in the "language" form field.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithHTTPClient replaces the HTTP client. The default has a 10s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider calls a remote OCR service.
type Provider struct {
	baseURL    string
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider for the service at baseURL, which must be
// non-empty.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("httpocr: baseURL must not be empty")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type response struct {
	Texts []string `json:"texts"`
	Error string   `json:"error,omitempty"`
}

// Recognize implements [ocr.Provider].
func (p *Provider) Recognize(ctx context.Context, img ocr.Image) ([]string, error) {
	body, contentType, err := p.encode(img)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+endpointPath, body)
	if err != nil {
		return nil, fmt.Errorf("httpocr: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpocr: send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("httpocr: read response body: %w", err)
	}

	var r response
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(data, &r) == nil && r.Error != "" {
			return nil, fmt.Errorf("httpocr: server returned HTTP %d: %s", resp.StatusCode, r.Error)
		}
		return nil, fmt.Errorf("httpocr: server returned HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("httpocr: decode response: %w", err)
	}
	return r.Texts, nil
}

// encode builds the multipart request body.
func (p *Provider) encode(img ocr.Image) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	ct := img.ContentType
	if ct == "" {
		ct = http.DetectContentType(img.Data)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="image"; filename="frame"`)
	h.Set("Content-Type", ct)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("httpocr: create form file: %w", err)
	}
	if _, err := fw.Write(img.Data); err != nil {
		return nil, "", fmt.Errorf("httpocr: write image: %w", err)
	}

	for name, value := range map[string]string{"model": p.model, "language": p.language} {
		if value == "" {
			continue
		}
		if err := mw.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("httpocr: write %s field: %w", name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("httpocr: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
