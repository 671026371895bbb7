package extraction

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

const cropQuality = 95

// croppedImageInfo records how a crop was produced alongside its element
// record in the metadata sidecar.
type croppedImageInfo struct {
	Filename string `json:"filename"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Padding  int    `json:"padding"`
}

// elementMetadata is the JSON sidecar written next to each cropped element
// image.
type elementMetadata struct {
	ElementID               string           `json:"element_id"`
	Type                    string           `json:"type"`
	Page                    int              `json:"page"`
	Index                   int              `json:"index"`
	BoundingBoxes           []BoundingBox    `json:"bounding_boxes"`
	BoundingBoxesNormalized []BoundingBox    `json:"bounding_boxes_normalized"`
	Metrics                 ElementMetrics   `json:"metrics"`
	ImageDimensions         ImageDimensions  `json:"image_dimensions"`
	CroppedImage            croppedImageInfo `json:"cropped_image"`
}

// CropAndSaveElement crops one element out of the page image and writes it to
// outputDir as {id}_{type}.jpg, plus a JSON metadata sidecar when
// saveMetadata is set. An empty path and error are returned when the crop or
// write fails; a failing element never aborts the batch.
func CropAndSaveElement(img image.Image, element Element, outputDir string, padding int, saveMetadata bool) (string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create element directory: %w", err)
	}

	content, err := ExtractElementContent(img, element, padding)
	if err != nil {
		return "", err
	}

	imageFilename := fmt.Sprintf("%s_%s.jpg", element.ID, element.Type)
	imagePath := filepath.Join(outputDir, imageFilename)
	if err := imaging.Save(content, imagePath, imaging.JPEGQuality(cropQuality)); err != nil {
		return "", fmt.Errorf("failed to save element image: %w", err)
	}

	if saveMetadata {
		metadata := elementMetadata{
			ElementID:               element.ID,
			Type:                    element.Type,
			Page:                    element.Page,
			Index:                   element.Index,
			BoundingBoxes:           element.BoundingBoxes,
			BoundingBoxesNormalized: element.BoundingBoxesNormalized,
			Metrics:                 element.Metrics,
			ImageDimensions:         element.ImageDimensions,
			CroppedImage: croppedImageInfo{
				Filename: imageFilename,
				Width:    content.Bounds().Dx(),
				Height:   content.Bounds().Dy(),
				Padding:  padding,
			},
		}

		data, err := json.MarshalIndent(metadata, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal element metadata: %w", err)
		}

		metadataPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s.json", element.ID, element.Type))
		if err := os.WriteFile(metadataPath, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write element metadata: %w", err)
		}
	}

	return imagePath, nil
}

// SaveAllElements crops and saves every element of a page, returning a map
// from element ID to saved image path. Failed elements are logged and left
// out of the map.
func SaveAllElements(img image.Image, elements []Element, outputDir string, padding int, saveMetadata bool) map[string]string {
	savedPaths := make(map[string]string)

	for _, element := range elements {
		imagePath, err := CropAndSaveElement(img, element, outputDir, padding, saveMetadata)
		if err != nil {
			log.WithFields(logrus.Fields{
				"element_id": element.ID,
				"type":       element.Type,
			}).WithError(err).Warn("Failed to save element")
			continue
		}
		savedPaths[element.ID] = imagePath
	}

	return savedPaths
}
