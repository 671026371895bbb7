package inference

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"
)

// defaultRenderDPI is the rasterization resolution for PDF pages.
const defaultRenderDPI = 200

// PDFToImages renders every page of a PDF into outputDir as
// page_%04d.png and returns the image paths in page order.
func PDFToImages(pdfPath, outputDir string, dpi int) ([]string, error) {
	if dpi <= 0 {
		return nil, fmt.Errorf("dpi must be positive, got %d", dpi)
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create pages directory: %w", err)
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %s: %w", pdfPath, err)
	}
	defer doc.Close()

	totalPages := doc.NumPage()

	var mu sync.Mutex
	var g errgroup.Group
	var imagePaths []string

	for n := 0; n < totalPages; n++ {
		n := n
		g.Go(func() error {
			mu.Lock()
			// The mupdf handle is not thread-safe.
			img, err := doc.ImageDPI(n, float64(dpi))
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("failed to render page %d: %w", n+1, err)
			}

			imagePath := filepath.Join(outputDir, fmt.Sprintf("page_%04d.png", n+1))
			f, err := os.Create(imagePath)
			if err != nil {
				return err
			}

			if err := png.Encode(f, img); err != nil {
				f.Close()
				return fmt.Errorf("failed to encode page %d: %w", n+1, err)
			}
			if err := f.Close(); err != nil {
				return err
			}

			mu.Lock()
			imagePaths = append(imagePaths, imagePath)
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The goroutines finish in arbitrary order.
	slices.Sort(imagePaths)

	return imagePaths, nil
}
