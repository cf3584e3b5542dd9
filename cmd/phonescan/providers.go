package main

import (
	"log/slog"

	"github.com/MrWong99/phonescan/internal/config"
	"github.com/MrWong99/phonescan/pkg/provider/ocr"
	"github.com/MrWong99/phonescan/pkg/provider/ocr/httpocr"
	"github.com/MrWong99/phonescan/pkg/provider/ocr/tesseract"
)

// registerBuiltinRecognizers wires the recognizer factories that ship with
// phonescan into reg.
func registerBuiltinRecognizers(reg *config.Registry) {
	reg.RegisterRecognizer("tesseract", func(entry config.ProviderEntry) (ocr.Provider, error) {
		var opts []tesseract.Option
		if entry.Model != "" {
			opts = append(opts, tesseract.WithLanguage(entry.Model))
		}
		if bin := optString(entry.Options, "binary"); bin != "" {
			opts = append(opts, tesseract.WithBinary(bin))
		}
		if psm, ok := optInt(entry.Options, "psm"); ok {
			opts = append(opts, tesseract.WithPSM(psm))
		}
		if dir := optString(entry.Options, "tessdata_dir"); dir != "" {
			opts = append(opts, tesseract.WithTessdataDir(dir))
		}
		return tesseract.New(opts...), nil
	})

	reg.RegisterRecognizer("http", func(entry config.ProviderEntry) (ocr.Provider, error) {
		var opts []httpocr.Option
		if entry.APIKey != "" {
			opts = append(opts, httpocr.WithAPIKey(entry.APIKey))
		}
		if entry.Model != "" {
			opts = append(opts, httpocr.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, httpocr.WithLanguage(lang))
		}
		return httpocr.New(entry.BaseURL, opts...)
	})

	for _, name := range reg.Recognizers() {
		slog.Debug("registered recognizer", "name", name)
	}
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value from a provider Options map. YAML
// decodes whole numbers as int; float64 is accepted for JSON-shaped input.
func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), v == float64(int(v))
	default:
		return 0, false
	}
}
