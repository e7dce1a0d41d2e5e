package imagery

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/citylore/server/internal/metrics"
)

// minOCRChars is the acceptance threshold: shorter output means the
// engine saw noise, not a poster.
const minOCRChars = 20

// OCREngine converts image bytes to text.
type OCREngine interface {
	Name() string
	Available() bool
	ExtractText(ctx context.Context, imageBytes []byte) (string, error)
}

// OCRChain tries engines in order until one returns enough text.
type OCRChain struct {
	engines []OCREngine
	logger  zerolog.Logger
}

// NewOCRChain builds a chain. preference "auto" (or empty) keeps the
// given order; a named preference moves that engine to the front.
func NewOCRChain(preference string, logger zerolog.Logger, engines ...OCREngine) *OCRChain {
	if preference != "" && preference != "auto" {
		ordered := make([]OCREngine, 0, len(engines))
		for _, e := range engines {
			if e.Name() == preference {
				ordered = append(ordered, e)
			}
		}
		for _, e := range engines {
			if e.Name() != preference {
				ordered = append(ordered, e)
			}
		}
		engines = ordered
	}
	return &OCRChain{engines: engines, logger: logger}
}

// WithPreference reorders a chain for one request without mutating the
// shared one.
func (c *OCRChain) WithPreference(preference string) *OCRChain {
	return NewOCRChain(preference, c.logger, c.engines...)
}

// ExtractText runs the chain. Unavailable engines are skipped; the first
// result of at least minOCRChars characters wins.
func (c *OCRChain) ExtractText(ctx context.Context, imageBytes []byte) (string, error) {
	var lastErr error
	for _, engine := range c.engines {
		if !engine.Available() {
			continue
		}
		text, err := engine.ExtractText(ctx, imageBytes)
		if err != nil {
			metrics.OCRExtractionsTotal.WithLabelValues(engine.Name(), "error").Inc()
			c.logger.Warn().Err(err).Str("engine", engine.Name()).Msg("ocr engine failed")
			lastErr = err
			continue
		}
		text = strings.TrimSpace(text)
		if len(text) < minOCRChars {
			metrics.OCRExtractionsTotal.WithLabelValues(engine.Name(), "too_short").Inc()
			continue
		}
		metrics.OCRExtractionsTotal.WithLabelValues(engine.Name(), "ok").Inc()
		return text, nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("all OCR engines failed: %w", lastErr)
	}
	return "", fmt.Errorf("no OCR engine produced usable text")
}

// TesseractEngine shells out to the tesseract CLI.
type TesseractEngine struct {
	binary string
}

func NewTesseractEngine() *TesseractEngine {
	return &TesseractEngine{binary: "tesseract"}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Available() bool {
	_, err := exec.LookPath(e.binary)
	return err == nil
}

func (e *TesseractEngine) ExtractText(ctx context.Context, imageBytes []byte) (string, error) {
	// stdin -> stdout keeps temp files out of the picture.
	cmd := exec.CommandContext(ctx, e.binary, "stdin", "stdout")
	cmd.Stdin = bytes.NewReader(imageBytes)

	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, strings.TrimSpace(errBuf.String()))
	}
	return out.String(), nil
}
