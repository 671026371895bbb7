package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	pagesDirname      = "pages"
	structureFilename = "document_structure.json"
	metricsFilename   = "performance_metrics.json"
	pageDirFormat     = "page_%04d"
)

// PageRange records the requested 1-indexed inclusive page range in the
// document structure, making the output page relabeling explicit.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// DocumentMetadata describes the processed document as a whole.
type DocumentMetadata struct {
	SourceFile    string         `json:"source_file"`
	Filename      string         `json:"filename"`
	NumPages      int            `json:"num_pages"`
	TotalElements int            `json:"total_elements"`
	ElementCounts map[string]int `json:"element_counts"`
	PageRange     *PageRange     `json:"page_range,omitempty"`
}

// PageSummary is the per-page entry of the document structure.
type PageSummary struct {
	Page         int      `json:"page"`
	NumElements  int      `json:"num_elements"`
	ElementTypes []string `json:"element_types"`
}

// DocumentStructure is the aggregated, serializable description of a
// multi-page document's detected elements.
type DocumentStructure struct {
	DocumentMetadata DocumentMetadata `json:"document_metadata"`
	Pages            []PageSummary    `json:"pages"`
}

// DocumentResult is the output of enhanced document processing.
type DocumentResult struct {
	Markdown  string
	Pages     []PageResult
	Structure DocumentStructure
	OutputDir string
}

// ProcessPDF runs OCR on each PDF page and returns the combined markdown,
// persisted as {stem}.md under the output root.
func ProcessPDF(ctx context.Context, runner ModelRunner, pdfPath, outputDir string) (string, error) {
	outputRoot, err := resolveOutputRoot(pdfPath, outputDir)
	if err != nil {
		return "", err
	}

	imagePaths, err := convertPDFPages(pdfPath, outputRoot)
	if err != nil {
		return "", err
	}

	var pageMarkdowns []string
	for i, imagePath := range imagePaths {
		pageNumber := i + 1
		pageDir := filepath.Join(outputRoot, fmt.Sprintf(pageDirFormat, pageNumber))

		markdown, err := ProcessImage(ctx, runner, imagePath, pageDir)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", pageNumber, err)
		}
		pageMarkdowns = append(pageMarkdowns, strings.TrimSpace(markdown))
	}

	combined := combineMarkdown(pageMarkdowns, 1)
	if err := writeCombinedMarkdown(outputRoot, pdfPath, combined); err != nil {
		return "", err
	}

	return combined, nil
}

// ProcessPDFEnhanced runs OCR on each PDF page with element extraction,
// cropping and overlay generation, and aggregates the per-page results into
// a document structure.
//
// When a page range is requested output pages are numbered from StartPage,
// not from the source document's own enumeration; the relabeling is recorded
// in the structure's page_range field.
func ProcessPDFEnhanced(ctx context.Context, runner ModelRunner, pdfPath, outputDir string, opts EnhancedOptions) (*DocumentResult, error) {
	outputRoot, err := resolveOutputRoot(pdfPath, outputDir)
	if err != nil {
		return nil, err
	}

	imagePaths, err := convertPDFPages(pdfPath, outputRoot)
	if err != nil {
		return nil, err
	}

	imagePaths, err = slicePageRange(imagePaths, opts.StartPage, opts.EndPage)
	if err != nil {
		return nil, err
	}

	firstPage := 1
	if opts.StartPage > 0 {
		firstPage = opts.StartPage
	}

	var pageResults []PageResult
	var pageMarkdowns []string

	for i, imagePath := range imagePaths {
		pageNumber := firstPage + i
		log.WithFields(logrus.Fields{
			"page":  pageNumber,
			"total": len(imagePaths),
		}).Info("Processing page")

		pageDir := filepath.Join(outputRoot, fmt.Sprintf(pageDirFormat, pageNumber))
		pageResult, err := ProcessImageEnhanced(ctx, runner, imagePath, pageDir, pageNumber, opts)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNumber, err)
		}

		pageResults = append(pageResults, *pageResult)
		pageMarkdowns = append(pageMarkdowns, strings.TrimSpace(pageResult.Markdown))
	}

	combined := combineMarkdown(pageMarkdowns, firstPage)
	if err := writeCombinedMarkdown(outputRoot, pdfPath, combined); err != nil {
		return nil, err
	}

	structure := buildDocumentStructure(pdfPath, pageResults, opts)
	structureData, err := json.MarshalIndent(structure, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document structure: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputRoot, structureFilename), structureData, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write document structure: %w", err)
	}

	return &DocumentResult{
		Markdown:  combined,
		Pages:     pageResults,
		Structure: structure,
		OutputDir: outputRoot,
	}, nil
}

// ProcessPDFWithMetrics runs OCR on each PDF page, tracking per-page timing
// and throughput, and persists an aggregate performance_metrics.json.
func ProcessPDFWithMetrics(ctx context.Context, runner ModelRunner, pdfPath, outputDir string, startPage, endPage int) (string, AggregateMetrics, error) {
	outputRoot, err := resolveOutputRoot(pdfPath, outputDir)
	if err != nil {
		return "", AggregateMetrics{}, err
	}

	imagePaths, err := convertPDFPages(pdfPath, outputRoot)
	if err != nil {
		return "", AggregateMetrics{}, err
	}

	imagePaths, err = slicePageRange(imagePaths, startPage, endPage)
	if err != nil {
		return "", AggregateMetrics{}, err
	}

	firstPage := 1
	if startPage > 0 {
		firstPage = startPage
	}

	tracker := NewPerformanceTracker()
	var pageMarkdowns []string

	for i, imagePath := range imagePaths {
		pageNumber := firstPage + i
		pageDir := filepath.Join(outputRoot, fmt.Sprintf(pageDirFormat, pageNumber))

		markdown, pageMetrics, err := ProcessImageWithMetrics(ctx, runner, imagePath, pageDir)
		if err != nil {
			return "", AggregateMetrics{}, fmt.Errorf("page %d: %w", pageNumber, err)
		}

		tracker.Record(pageMetrics)
		pageMarkdowns = append(pageMarkdowns, strings.TrimSpace(markdown))

		log.WithFields(logrus.Fields{
			"page":           pageNumber,
			"time_seconds":   pageMetrics.TotalTime,
			"tokens":         pageMetrics.TokensGenerated,
			"tokens_per_sec": pageMetrics.TokensPerSecond,
		}).Info("Page processed")
	}

	combined := combineMarkdown(pageMarkdowns, firstPage)
	if err := writeCombinedMarkdown(outputRoot, pdfPath, combined); err != nil {
		return "", AggregateMetrics{}, err
	}

	aggregate, err := tracker.Aggregate()
	if err != nil {
		return "", AggregateMetrics{}, err
	}

	metricsData, err := json.MarshalIndent(aggregate, "", "  ")
	if err != nil {
		return "", AggregateMetrics{}, fmt.Errorf("failed to marshal metrics: %w", err)
	}
	if err := os.WriteFile(filepath.Join(outputRoot, metricsFilename), metricsData, 0o644); err != nil {
		return "", AggregateMetrics{}, fmt.Errorf("failed to write metrics: %w", err)
	}

	return combined, aggregate, nil
}

// resolveOutputRoot picks and creates the output directory, defaulting to
// {stem}_outputs next to the PDF.
func resolveOutputRoot(pdfPath, outputDir string) (string, error) {
	if _, err := os.Stat(pdfPath); err != nil {
		return "", fmt.Errorf("PDF file not found: %s", pdfPath)
	}

	if outputDir == "" {
		outputDir = filepath.Join(filepath.Dir(pdfPath), pdfStem(pdfPath)+"_outputs")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return outputDir, nil
}

// convertPDFPages renders the PDF into page images under {root}/pages.
func convertPDFPages(pdfPath, outputRoot string) ([]string, error) {
	pagesDir := filepath.Join(outputRoot, pagesDirname)
	imagePaths, err := PDFToImages(pdfPath, pagesDir, defaultRenderDPI)
	if err != nil {
		return nil, err
	}
	if len(imagePaths) == 0 {
		return nil, fmt.Errorf("no pages found in PDF: %s", pdfPath)
	}
	return imagePaths, nil
}

// slicePageRange applies 1-indexed inclusive page-range bounds to the
// ordered page-image sequence. An empty result is an error, surfaced before
// any per-page work happens.
func slicePageRange(imagePaths []string, startPage, endPage int) ([]string, error) {
	if startPage == 0 && endPage == 0 {
		return imagePaths, nil
	}

	startIdx := 0
	if startPage > 0 {
		startIdx = startPage - 1
	}
	endIdx := len(imagePaths)
	if endPage > 0 && endPage < endIdx {
		endIdx = endPage
	}

	if startIdx >= len(imagePaths) || startIdx >= endIdx {
		return nil, fmt.Errorf("no pages in range %d-%d", startPage, endPage)
	}
	return imagePaths[startIdx:endIdx], nil
}

// combineMarkdown joins per-page markdown with <!-- Page N --> markers,
// numbering from firstPage.
func combineMarkdown(pageMarkdowns []string, firstPage int) string {
	parts := make([]string, len(pageMarkdowns))
	for i, content := range pageMarkdowns {
		marker := fmt.Sprintf("<!-- Page %d -->", firstPage+i)
		if content == "" {
			parts[i] = marker
		} else {
			parts[i] = marker + "\n" + content
		}
	}
	return strings.Join(parts, "\n\n")
}

func writeCombinedMarkdown(outputRoot, pdfPath, combined string) error {
	combinedPath := filepath.Join(outputRoot, pdfStem(pdfPath)+".md")
	if err := os.WriteFile(combinedPath, []byte(combined), 0o644); err != nil {
		return fmt.Errorf("failed to write combined markdown: %w", err)
	}
	return nil
}

// buildDocumentStructure aggregates per-page results into the document-level
// structure. Counts always reflect what was actually produced.
func buildDocumentStructure(pdfPath string, pageResults []PageResult, opts EnhancedOptions) DocumentStructure {
	totalElements := 0
	elementCounts := make(map[string]int)
	pages := make([]PageSummary, 0, len(pageResults))

	for _, result := range pageResults {
		totalElements += len(result.Elements)

		typeSet := make(map[string]struct{})
		for _, e := range result.Elements {
			elementCounts[e.Type]++
			typeSet[e.Type] = struct{}{}
		}

		types := make([]string, 0, len(typeSet))
		for t := range typeSet {
			types = append(types, t)
		}
		sort.Strings(types)

		pages = append(pages, PageSummary{
			Page:         result.PageNumber,
			NumElements:  len(result.Elements),
			ElementTypes: types,
		})
	}

	metadata := DocumentMetadata{
		SourceFile:    pdfPath,
		Filename:      filepath.Base(pdfPath),
		NumPages:      len(pageResults),
		TotalElements: totalElements,
		ElementCounts: elementCounts,
	}
	if opts.StartPage > 0 || opts.EndPage > 0 {
		metadata.PageRange = &PageRange{Start: opts.StartPage, End: opts.EndPage}
	}

	return DocumentStructure{
		DocumentMetadata: metadata,
		Pages:            pages,
	}
}

func pdfStem(pdfPath string) string {
	base := filepath.Base(pdfPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
