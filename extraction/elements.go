package extraction

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

// SetLogLevel sets the logging level for the extraction package.
func SetLogLevel(level logrus.Level) {
	log.SetLevel(level)
}

// ImageDimensions holds the pixel size of a source page image.
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ElementMetrics is derived geometry for an element. TotalArea sums each
// box's own area, so overlapping boxes are double-counted; width, height and
// aspect ratio come from the union envelope of all boxes.
type ElementMetrics struct {
	NumBoxes    int     `json:"num_boxes"`
	TotalArea   float64 `json:"total_area"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
}

// Element is one semantic unit detected on a page. The type label is open:
// the model may emit arbitrary labels beyond the known set. Elements are
// immutable once built; downstream stages only read them.
type Element struct {
	ID                      string          `json:"id"`
	Type                    string          `json:"type"`
	Page                    int             `json:"page"`
	Index                   int             `json:"index"`
	BoundingBoxes           []BoundingBox   `json:"bounding_boxes"`
	BoundingBoxesNormalized []BoundingBox   `json:"bounding_boxes_normalized"`
	Metrics                 ElementMetrics  `json:"metrics"`
	ImageDimensions         ImageDimensions `json:"image_dimensions"`
}

// ExtractOptions configures element extraction.
type ExtractOptions struct {
	// Padding in pixels added around each element when cropping content.
	Padding int
	// MinWidth and MinHeight drop boxes that collapse below this size after
	// clipping.
	MinWidth  int
	MinHeight int
	// StrictValidation drops individual invalid boxes instead of keeping
	// them for clipping.
	StrictValidation bool
}

// DefaultExtractOptions returns the extraction defaults.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Padding:   0,
		MinWidth:  10,
		MinHeight: 10,
	}
}

// ExtractAllElements parses grounding references out of raw model output and
// builds typed elements against the given page image. References whose
// coordinate literal fails to parse, and references whose every box is
// dropped, are skipped without consuming an element index. Output order
// follows parse order.
func ExtractAllElements(img image.Image, modelOutput string, pageNumber int, opts ExtractOptions) []Element {
	bounds := img.Bounds()
	imageWidth := bounds.Dx()
	imageHeight := bounds.Dy()

	refs := ParseGroundingReferences(modelOutput)

	var elements []Element
	elementIndex := 0

	for _, ref := range refs {
		coordsList, err := ParseCoordinates(ref.Coords)
		if err != nil {
			log.WithFields(logrus.Fields{
				"page":  pageNumber,
				"label": ref.Label,
			}).WithError(err).Warn("Failed to parse coordinates, skipping reference")
			continue
		}

		var boxes []BoundingBox
		for _, coords := range coordsList {
			if len(coords) != 4 {
				continue
			}

			modelBox := BoundingBox{X1: coords[0], Y1: coords[1], X2: coords[2], Y2: coords[3]}
			absBox := DenormalizeModel(modelBox, imageWidth, imageHeight)

			if !Validate(absBox, imageWidth, imageHeight, true) && opts.StrictValidation {
				continue
			}

			absBox = ClipToImage(absBox, imageWidth, imageHeight)

			if absBox.X2-absBox.X1 < float64(opts.MinWidth) || absBox.Y2-absBox.Y1 < float64(opts.MinHeight) {
				continue
			}

			boxes = append(boxes, absBox)
		}

		if len(boxes) == 0 {
			continue
		}

		totalArea := 0.0
		for _, b := range boxes {
			totalArea += (b.X2 - b.X1) * (b.Y2 - b.Y1)
		}

		envelope := unionEnvelope(boxes)
		overallWidth := envelope.X2 - envelope.X1
		overallHeight := envelope.Y2 - envelope.Y1
		overallAspect := 0.0
		if overallHeight > 0 {
			overallAspect = overallWidth / overallHeight
		}

		normalized := make([]BoundingBox, len(boxes))
		for i, b := range boxes {
			normalized[i] = Normalize(b, imageWidth, imageHeight)
		}

		elements = append(elements, Element{
			ID:                      fmt.Sprintf("page_%04d_elem_%04d", pageNumber, elementIndex),
			Type:                    ref.Label,
			Page:                    pageNumber,
			Index:                   elementIndex,
			BoundingBoxes:           boxes,
			BoundingBoxesNormalized: normalized,
			Metrics: ElementMetrics{
				NumBoxes:    len(boxes),
				TotalArea:   totalArea,
				Width:       overallWidth,
				Height:      overallHeight,
				AspectRatio: overallAspect,
			},
			ImageDimensions: ImageDimensions{Width: imageWidth, Height: imageHeight},
		})
		elementIndex++
	}

	return elements
}

// ExtractElementContent crops the visual content of an element out of its
// source image. Elements spanning multiple boxes are cropped at their union
// envelope. The crop region is expanded by padding pixels and clipped to the
// image bounds.
func ExtractElementContent(img image.Image, element Element, padding int) (image.Image, error) {
	if len(element.BoundingBoxes) == 0 {
		return nil, fmt.Errorf("element %s has no bounding boxes", element.ID)
	}

	bounds := img.Bounds()
	region := unionEnvelope(element.BoundingBoxes)
	if padding > 0 {
		region = AddPadding(region, padding, bounds.Dx(), bounds.Dy())
	}

	rect := image.Rect(int(region.X1), int(region.Y1), int(region.X2), int(region.Y2))
	return imaging.Crop(img, rect), nil
}
