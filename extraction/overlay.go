package extraction

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

const (
	boxLineWidth       = 2.0
	titleLineWidth     = 4.0
	labelOffset        = 15.0
	fillAlpha          = 20
	labelBgAlpha       = 30
	allTypesOverlayKey = "all_types"
)

// ColorScheme maps element types to overlay colors. It is built once and
// passed into the renderer; unknown types fall back to a single gray.
type ColorScheme struct {
	colors   map[string]color.RGBA
	fallback color.RGBA
}

// DefaultColorScheme returns the default palette for known element types.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		colors: map[string]color.RGBA{
			"title":     {R: 255, G: 0, B: 0, A: 255},
			"paragraph": {R: 0, G: 255, B: 0, A: 255},
			"image":     {R: 0, G: 0, B: 255, A: 255},
			"table":     {R: 255, G: 165, B: 0, A: 255},
			"equation":  {R: 255, G: 0, B: 255, A: 255},
			"caption":   {R: 0, G: 255, B: 255, A: 255},
			"list":      {R: 255, G: 255, B: 0, A: 255},
			"header":    {R: 128, G: 0, B: 128, A: 255},
			"footer":    {R: 128, G: 128, B: 128, A: 255},
		},
		fallback: color.RGBA{R: 200, G: 200, B: 200, A: 255},
	}
}

// ColorFor returns the color for an element type, or the fallback gray for
// unknown types.
func (s *ColorScheme) ColorFor(elementType string) color.RGBA {
	if c, ok := s.colors[elementType]; ok {
		return c
	}
	return s.fallback
}

// drawElementBoxes strokes, fills and labels every bounding box of the given
// elements. Strokes and labels go onto the main canvas, the low-alpha fill
// onto the separate overlay canvas composited by the caller.
func drawElementBoxes(dc, overlay *gg.Context, elements []Element, col color.RGBA) {
	for _, element := range elements {
		lineWidth := boxLineWidth
		if element.Type == "title" {
			lineWidth = titleLineWidth
		}

		for _, box := range element.BoundingBoxes {
			w := box.X2 - box.X1
			h := box.Y2 - box.Y1

			dc.SetColor(col)
			dc.SetLineWidth(lineWidth)
			dc.DrawRectangle(box.X1, box.Y1, w, h)
			dc.Stroke()

			overlay.SetRGBA255(int(col.R), int(col.G), int(col.B), fillAlpha)
			overlay.DrawRectangle(box.X1, box.Y1, w, h)
			overlay.Fill()

			textY := box.Y1 - labelOffset
			if textY < 0 {
				textY = 0
			}
			textWidth, textHeight := dc.MeasureString(element.Type)

			dc.SetRGBA255(255, 255, 255, labelBgAlpha)
			dc.DrawRectangle(box.X1, textY, textWidth, textHeight)
			dc.Fill()

			dc.SetColor(col)
			dc.DrawStringAnchored(element.Type, box.X1, textY, 0, 1)
		}
	}
}

// RenderTypeOverlay draws bounding boxes for one element type onto a copy of
// the page image. When no element matches the type, an unmodified copy is
// returned.
func RenderTypeOverlay(img image.Image, elements []Element, elementType string, scheme *ColorScheme) image.Image {
	var filtered []Element
	for _, e := range elements {
		if e.Type == elementType {
			filtered = append(filtered, e)
		}
	}

	dc := gg.NewContextForImage(img)
	if len(filtered) == 0 {
		return dc.Image()
	}

	overlay := gg.NewContext(dc.Width(), dc.Height())
	drawElementBoxes(dc, overlay, filtered, scheme.ColorFor(elementType))
	dc.DrawImage(overlay.Image(), 0, 0)

	return dc.Image()
}

// RenderAllTypesOverlay draws every element type with its own color onto one
// shared canvas. Types are drawn in first-seen order so output is
// deterministic.
func RenderAllTypesOverlay(img image.Image, elements []Element, scheme *ColorScheme) image.Image {
	dc := gg.NewContextForImage(img)
	if len(elements) == 0 {
		return dc.Image()
	}

	var typeOrder []string
	byType := make(map[string][]Element)
	for _, e := range elements {
		if _, seen := byType[e.Type]; !seen {
			typeOrder = append(typeOrder, e.Type)
		}
		byType[e.Type] = append(byType[e.Type], e)
	}

	overlay := gg.NewContext(dc.Width(), dc.Height())
	for _, elementType := range typeOrder {
		drawElementBoxes(dc, overlay, byType[elementType], scheme.ColorFor(elementType))
	}
	dc.DrawImage(overlay.Image(), 0, 0)

	return dc.Image()
}

// GenerateTypeOverlays renders and saves one overlay image per distinct
// element type present, plus a combined overlay of all types, into outputDir.
// The returned map goes from type (or "all_types") to saved path. An empty
// element list yields an empty map and no files.
func GenerateTypeOverlays(img image.Image, elements []Element, outputDir string, scheme *ColorScheme) (map[string]string, error) {
	savedOverlays := make(map[string]string)
	if len(elements) == 0 {
		return savedOverlays, nil
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create overlay directory: %w", err)
	}

	typeSet := make(map[string]struct{})
	for _, e := range elements {
		typeSet[e.Type] = struct{}{}
	}
	elementTypes := make([]string, 0, len(typeSet))
	for t := range typeSet {
		elementTypes = append(elementTypes, t)
	}
	sort.Strings(elementTypes)

	for _, elementType := range elementTypes {
		overlayImage := RenderTypeOverlay(img, elements, elementType, scheme)
		overlayPath := filepath.Join(outputDir, fmt.Sprintf("%s_only.jpg", elementType))
		if err := imaging.Save(overlayImage, overlayPath, imaging.JPEGQuality(cropQuality)); err != nil {
			log.WithField("type", elementType).WithError(err).Warn("Failed to save type overlay")
			continue
		}
		savedOverlays[elementType] = overlayPath
	}

	allTypesImage := RenderAllTypesOverlay(img, elements, scheme)
	allTypesPath := filepath.Join(outputDir, "all_types_colored.jpg")
	if err := imaging.Save(allTypesImage, allTypesPath, imaging.JPEGQuality(cropQuality)); err != nil {
		log.WithError(err).Warn("Failed to save combined overlay")
	} else {
		savedOverlays[allTypesOverlayKey] = allTypesPath
	}

	return savedOverlays, nil
}
