package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDenormalizeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		box  BoundingBox
		w, h int
	}{
		{name: "Small box", box: BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 220}, w: 800, h: 600},
		{name: "Full image", box: BoundingBox{X1: 0, Y1: 0, X2: 800, Y2: 600}, w: 800, h: 600},
		{name: "Single row strip", box: BoundingBox{X1: 5, Y1: 300, X2: 795, Y2: 320}, w: 800, h: 600},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			roundTripped := DenormalizeUnit(Normalize(tc.box, tc.w, tc.h), tc.w, tc.h)
			assert.InDelta(t, tc.box.X1, roundTripped.X1, 1)
			assert.InDelta(t, tc.box.Y1, roundTripped.Y1, 1)
			assert.InDelta(t, tc.box.X2, roundTripped.X2, 1)
			assert.InDelta(t, tc.box.Y2, roundTripped.Y2, 1)
		})
	}
}

func TestDenormalizeModel(t *testing.T) {
	// 999-space coordinates scale against the image size, not unit
	// normalization.
	box := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 50}
	abs := DenormalizeModel(box, 200, 200)
	assert.Equal(t, BoundingBox{X1: 0, Y1: 0, X2: 20, Y2: 10}, abs)

	full := DenormalizeModel(BoundingBox{X1: 0, Y1: 0, X2: 999, Y2: 999}, 640, 480)
	assert.Equal(t, BoundingBox{X1: 0, Y1: 0, X2: 640, Y2: 480}, full)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name             string
		box              BoundingBox
		allowOutOfBounds bool
		expected         bool
	}{
		{name: "Valid box", box: BoundingBox{X1: 10, Y1: 10, X2: 50, Y2: 50}, expected: true},
		{name: "Inverted x", box: BoundingBox{X1: 50, Y1: 10, X2: 10, Y2: 50}, expected: false},
		{name: "Inverted y", box: BoundingBox{X1: 10, Y1: 50, X2: 50, Y2: 10}, expected: false},
		{name: "Zero width", box: BoundingBox{X1: 10, Y1: 10, X2: 10, Y2: 50}, expected: false},
		{name: "Zero height", box: BoundingBox{X1: 10, Y1: 10, X2: 50, Y2: 10}, expected: false},
		{name: "Negative origin", box: BoundingBox{X1: -1, Y1: 10, X2: 50, Y2: 50}, expected: false},
		{name: "Out of bounds rejected", box: BoundingBox{X1: 10, Y1: 10, X2: 150, Y2: 50}, expected: false},
		{name: "Out of bounds allowed", box: BoundingBox{X1: 10, Y1: 10, X2: 150, Y2: 50}, allowOutOfBounds: true, expected: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Validate(tc.box, 100, 100, tc.allowOutOfBounds))
		})
	}
}

func TestClipToImageIdempotent(t *testing.T) {
	box := BoundingBox{X1: -20, Y1: 30, X2: 500, Y2: 700}
	clipped := ClipToImage(box, 400, 600)
	assert.Equal(t, BoundingBox{X1: 0, Y1: 30, X2: 400, Y2: 600}, clipped)
	assert.Equal(t, clipped, ClipToImage(clipped, 400, 600))
}

func TestAddPadding(t *testing.T) {
	// Expansion happens before clamping, so a padded edge box sticks to the
	// image border.
	box := BoundingBox{X1: 5, Y1: 5, X2: 95, Y2: 95}
	padded := AddPadding(box, 10, 100, 100)
	assert.Equal(t, BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}, padded)

	inner := AddPadding(BoundingBox{X1: 40, Y1: 40, X2: 60, Y2: 60}, 10, 100, 100)
	assert.Equal(t, BoundingBox{X1: 30, Y1: 30, X2: 70, Y2: 70}, inner)
}

func TestMetrics(t *testing.T) {
	m := Metrics(BoundingBox{X1: 10, Y1: 20, X2: 50, Y2: 40})
	assert.Equal(t, 40.0, m.Width)
	assert.Equal(t, 20.0, m.Height)
	assert.Equal(t, 800.0, m.Area)
	assert.Equal(t, 2.0, m.AspectRatio)

	degenerate := Metrics(BoundingBox{X1: 10, Y1: 20, X2: 50, Y2: 20})
	assert.Equal(t, 0.0, degenerate.AspectRatio)
}

func TestIoU(t *testing.T) {
	a := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
	b := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}
	disjoint := BoundingBox{X1: 200, Y1: 200, X2: 300, Y2: 300}

	assert.Equal(t, 1.0, IoU(a, a))
	assert.Equal(t, IoU(a, b), IoU(b, a))
	assert.Equal(t, 0.0, IoU(a, disjoint))

	// 50x50 intersection over 100x100 + 100x100 - 50x50 union.
	assert.InDelta(t, 2500.0/17500.0, IoU(a, b), 1e-9)
}
