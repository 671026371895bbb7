package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/shrey2003/DeepSeek-OCR-CPU/extraction"
)

const (
	markdownFilename  = "result.mmd"
	rawOutputFilename = "result_raw.txt"
	elementsFilename  = "elements.json"
	elementsDirname   = "elements"
	overlaysDirname   = "overlays"
)

// PageResult bundles everything produced for one page.
type PageResult struct {
	PageNumber   int
	ImagePath    string
	Markdown     string
	RawOutput    string
	Elements     []extraction.Element
	ElementPaths map[string]string
	OverlayPaths map[string]string
}

// EnhancedOptions configures enhanced page and document processing.
type EnhancedOptions struct {
	Extract          extraction.ExtractOptions
	GenerateOverlays bool
	SaveElements     bool
	// Colors overrides the overlay palette; nil means the default scheme.
	Colors *extraction.ColorScheme
	// StartPage and EndPage select a 1-indexed inclusive page range over the
	// rendered page sequence; 0 leaves the bound open.
	StartPage int
	EndPage   int
}

// DefaultEnhancedOptions returns the enhanced-processing defaults.
func DefaultEnhancedOptions() EnhancedOptions {
	return EnhancedOptions{
		Extract:          extraction.DefaultExtractOptions(),
		GenerateOverlays: true,
		SaveElements:     true,
	}
}

// ProcessImage runs OCR on a single page image. When outputDir is non-empty
// the markdown is persisted as result.mmd and the raw grounded output as
// result_raw.txt.
func ProcessImage(ctx context.Context, runner ModelRunner, imagePath, outputDir string) (string, error) {
	out, err := runner.Infer(ctx, imagePath)
	if err != nil {
		return "", fmt.Errorf("model inference failed for %s: %w", imagePath, err)
	}

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(outputDir, markdownFilename), []byte(out.Markdown), 0o644); err != nil {
			return "", fmt.Errorf("failed to write markdown: %w", err)
		}
		if out.RawOutput != "" {
			if err := os.WriteFile(filepath.Join(outputDir, rawOutputFilename), []byte(out.RawOutput), 0o644); err != nil {
				return "", fmt.Errorf("failed to write raw output: %w", err)
			}
		}
	}

	return out.Markdown, nil
}

// ProcessImageWithMetrics runs OCR on a single image and measures only the
// inference call.
func ProcessImageWithMetrics(ctx context.Context, runner ModelRunner, imagePath, outputDir string) (string, PerformanceMetrics, error) {
	start := time.Now()
	out, err := runner.Infer(ctx, imagePath)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return "", PerformanceMetrics{}, fmt.Errorf("model inference failed for %s: %w", imagePath, err)
	}

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return "", PerformanceMetrics{}, fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(outputDir, markdownFilename), []byte(out.Markdown), 0o644); err != nil {
			return "", PerformanceMetrics{}, fmt.Errorf("failed to write markdown: %w", err)
		}
		if out.RawOutput != "" {
			if err := os.WriteFile(filepath.Join(outputDir, rawOutputFilename), []byte(out.RawOutput), 0o644); err != nil {
				return "", PerformanceMetrics{}, fmt.Errorf("failed to write raw output: %w", err)
			}
		}
	}

	tokensPerSec := 0.0
	if elapsed > 0 {
		tokensPerSec = float64(out.TokensGenerated) / elapsed
	}

	metrics := PerformanceMetrics{
		TotalTime:            elapsed,
		TokensGenerated:      out.TokensGenerated,
		TokensPerSecond:      tokensPerSec,
		InputTokens:          out.InputTokens,
		TotalTokensProcessed: out.InputTokens + out.TokensGenerated,
	}

	return out.Markdown, metrics, nil
}

// ProcessImageEnhanced runs OCR on a single page image and extracts typed
// elements, per-element crops and type overlays from the grounded raw
// output. The raw output file must exist under outputDir after inference;
// its absence is fatal for the page.
func ProcessImageEnhanced(ctx context.Context, runner ModelRunner, imagePath, outputDir string, pageNumber int, opts EnhancedOptions) (*PageResult, error) {
	if outputDir == "" {
		return nil, fmt.Errorf("output directory is required for enhanced processing")
	}

	markdown, err := ProcessImage(ctx, runner, imagePath, outputDir)
	if err != nil {
		return nil, err
	}

	rawPath := filepath.Join(outputDir, rawOutputFilename)
	rawBytes, err := os.ReadFile(rawPath)
	if err != nil {
		return nil, fmt.Errorf("raw output with grounding references not found at %s: %w", rawPath, err)
	}
	rawOutput := string(rawBytes)

	img, err := imaging.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open page image %s: %w", imagePath, err)
	}

	elements := extraction.ExtractAllElements(img, rawOutput, pageNumber, opts.Extract)
	log.WithFields(logrus.Fields{
		"page":     pageNumber,
		"elements": len(elements),
	}).Debug("Extracted elements from page")

	result := &PageResult{
		PageNumber:   pageNumber,
		ImagePath:    imagePath,
		Markdown:     markdown,
		RawOutput:    rawOutput,
		Elements:     elements,
		ElementPaths: map[string]string{},
		OverlayPaths: map[string]string{},
	}

	if opts.SaveElements {
		elementsDir := filepath.Join(outputDir, elementsDirname)
		result.ElementPaths = extraction.SaveAllElements(img, elements, elementsDir, opts.Extract.Padding, true)
	}

	if opts.GenerateOverlays {
		scheme := opts.Colors
		if scheme == nil {
			scheme = extraction.DefaultColorScheme()
		}
		overlaysDir := filepath.Join(outputDir, overlaysDirname)
		overlayPaths, err := extraction.GenerateTypeOverlays(img, elements, overlaysDir, scheme)
		if err != nil {
			return nil, err
		}
		result.OverlayPaths = overlayPaths
	}

	if err := writeElementsJSON(outputDir, elements); err != nil {
		return nil, err
	}

	return result, nil
}

// writeElementsJSON persists a page's element list as elements.json. An
// empty list serializes as an empty array, not null.
func writeElementsJSON(outputDir string, elements []extraction.Element) error {
	if elements == nil {
		elements = []extraction.Element{}
	}
	data, err := json.MarshalIndent(elements, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal elements: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, elementsFilename), data, 0o644); err != nil {
		return fmt.Errorf("failed to write elements.json: %w", err)
	}
	return nil
}
