package extraction

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultColorScheme(t *testing.T) {
	scheme := DefaultColorScheme()

	title := scheme.ColorFor("title")
	assert.EqualValues(t, 255, title.R)
	assert.EqualValues(t, 0, title.G)

	// Unknown types share the single fallback gray.
	unknown := scheme.ColorFor("marginalia")
	assert.Equal(t, scheme.fallback, unknown)
	assert.Equal(t, unknown, scheme.ColorFor("another-unknown"))
}

func TestRenderTypeOverlayNoMatchReturnsCopy(t *testing.T) {
	img := testImage(100, 100)
	elements := ExtractAllElements(img, "<|ref|>table<|/ref|><|det|>[[0,0,999,999]]<|/det|>", 1, DefaultExtractOptions())
	require.Len(t, elements, 1)

	out := RenderTypeOverlay(img, elements, "title", DefaultColorScheme())
	require.NotNil(t, out)
	assert.Equal(t, img.Bounds(), out.Bounds())

	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)
	// No strokes for a type with no matching elements.
	for i := range rgba.Pix {
		if i%4 == 3 {
			continue // alpha
		}
		assert.Zero(t, rgba.Pix[i])
	}
}

func TestRenderTypeOverlayDrawsBoxes(t *testing.T) {
	img := testImage(100, 100)
	elements := ExtractAllElements(img, "<|ref|>table<|/ref|><|det|>[[100,100,800,800]]<|/det|>", 1, DefaultExtractOptions())
	require.Len(t, elements, 1)

	out := RenderTypeOverlay(img, elements, "table", DefaultColorScheme())
	rgba, ok := out.(*image.RGBA)
	require.True(t, ok)

	changed := false
	for i := 0; i < len(rgba.Pix); i += 4 {
		if rgba.Pix[i] != 0 || rgba.Pix[i+1] != 0 || rgba.Pix[i+2] != 0 {
			changed = true
			break
		}
	}
	assert.True(t, changed, "expected strokes on the rendered overlay")
}

func TestGenerateTypeOverlays(t *testing.T) {
	img := testImage(100, 100)
	raw := "<|ref|>title<|/ref|><|det|>[[0,0,999,200]]<|/det|>" +
		"<|ref|>paragraph<|/ref|><|det|>[[0,300,999,600]]<|/det|>" +
		"<|ref|>paragraph<|/ref|><|det|>[[0,700,999,999]]<|/det|>"
	elements := ExtractAllElements(img, raw, 1, DefaultExtractOptions())
	require.Len(t, elements, 3)

	outDir := t.TempDir()
	saved, err := GenerateTypeOverlays(img, elements, outDir, DefaultColorScheme())
	require.NoError(t, err)

	require.Len(t, saved, 3)
	assert.Equal(t, filepath.Join(outDir, "title_only.jpg"), saved["title"])
	assert.Equal(t, filepath.Join(outDir, "paragraph_only.jpg"), saved["paragraph"])
	assert.Equal(t, filepath.Join(outDir, "all_types_colored.jpg"), saved["all_types"])

	for _, path := range saved {
		assert.FileExists(t, path)
	}
}

func TestGenerateTypeOverlaysEmptyElements(t *testing.T) {
	img := testImage(100, 100)
	outDir := filepath.Join(t.TempDir(), "overlays")

	saved, err := GenerateTypeOverlays(img, nil, outDir, DefaultColorScheme())
	require.NoError(t, err)
	assert.Empty(t, saved)

	// No files, not even the directory.
	_, statErr := os.Stat(outDir)
	assert.True(t, os.IsNotExist(statErr))
}
