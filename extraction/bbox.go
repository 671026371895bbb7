package extraction

// BoundingBox is an axis-aligned rectangle. Coordinates may live in one of
// three spaces: the model's native 0-999 space, absolute pixels, or
// normalized [0,1]. A box is valid when x1 < x2 and y1 < y2.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// BoxMetrics describes the basic geometry of a single box.
type BoxMetrics struct {
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Area        float64 `json:"area"`
	AspectRatio float64 `json:"aspect_ratio"`
}

// Normalize converts absolute pixel coordinates to the [0,1] range.
func Normalize(box BoundingBox, imageWidth, imageHeight int) BoundingBox {
	w := float64(imageWidth)
	h := float64(imageHeight)
	return BoundingBox{
		X1: box.X1 / w,
		Y1: box.Y1 / h,
		X2: box.X2 / w,
		Y2: box.Y2 / h,
	}
}

// DenormalizeUnit converts [0,1] normalized coordinates to absolute pixels,
// truncating to whole pixels.
//
// The DeepSeek model emits 0-999 coordinates, not [0,1]; those go through
// DenormalizeModel instead.
func DenormalizeUnit(box BoundingBox, imageWidth, imageHeight int) BoundingBox {
	return BoundingBox{
		X1: float64(int(box.X1 * float64(imageWidth))),
		Y1: float64(int(box.Y1 * float64(imageHeight))),
		X2: float64(int(box.X2 * float64(imageWidth))),
		Y2: float64(int(box.Y2 * float64(imageHeight))),
	}
}

// DenormalizeModel converts the model's native 0-999 coordinates to absolute
// pixels, truncating to whole pixels.
func DenormalizeModel(box BoundingBox, imageWidth, imageHeight int) BoundingBox {
	return BoundingBox{
		X1: float64(int(box.X1 / 999 * float64(imageWidth))),
		Y1: float64(int(box.Y1 / 999 * float64(imageHeight))),
		X2: float64(int(box.X2 / 999 * float64(imageWidth))),
		Y2: float64(int(box.Y2 / 999 * float64(imageHeight))),
	}
}

// Validate reports whether the box has positive extent and lies within the
// image. With allowOutOfBounds the right/bottom bounds check is skipped so
// boxes that will be clipped later still pass.
func Validate(box BoundingBox, imageWidth, imageHeight int, allowOutOfBounds bool) bool {
	if box.X1 >= box.X2 || box.Y1 >= box.Y2 {
		return false
	}
	if box.X1 < 0 || box.Y1 < 0 {
		return false
	}
	if !allowOutOfBounds {
		if box.X2 > float64(imageWidth) || box.Y2 > float64(imageHeight) {
			return false
		}
	}
	return true
}

// ClipToImage clamps each coordinate independently into [0,w] and [0,h].
func ClipToImage(box BoundingBox, imageWidth, imageHeight int) BoundingBox {
	return BoundingBox{
		X1: clamp(box.X1, 0, float64(imageWidth)),
		Y1: clamp(box.Y1, 0, float64(imageHeight)),
		X2: clamp(box.X2, 0, float64(imageWidth)),
		Y2: clamp(box.Y2, 0, float64(imageHeight)),
	}
}

// AddPadding expands the box by padding pixels on each side, then clamps the
// result to the image bounds.
func AddPadding(box BoundingBox, padding, imageWidth, imageHeight int) BoundingBox {
	pad := float64(padding)
	return BoundingBox{
		X1: clamp(box.X1-pad, 0, float64(imageWidth)),
		Y1: clamp(box.Y1-pad, 0, float64(imageHeight)),
		X2: clamp(box.X2+pad, 0, float64(imageWidth)),
		Y2: clamp(box.Y2+pad, 0, float64(imageHeight)),
	}
}

// Metrics computes width, height, area and aspect ratio of a box. Aspect
// ratio is 0 when the height is 0.
func Metrics(box BoundingBox) BoxMetrics {
	width := box.X2 - box.X1
	height := box.Y2 - box.Y1
	aspect := 0.0
	if height > 0 {
		aspect = width / height
	}
	return BoxMetrics{
		Width:       width,
		Height:      height,
		Area:        width * height,
		AspectRatio: aspect,
	}
}

// IoU computes intersection-over-union between two boxes. Disjoint boxes and
// zero-area unions yield 0.
func IoU(a, b BoundingBox) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0.0
	}

	interArea := (x2 - x1) * (y2 - y1)
	aArea := (a.X2 - a.X1) * (a.Y2 - a.Y1)
	bArea := (b.X2 - b.X1) * (b.Y2 - b.Y1)
	unionArea := aArea + bArea - interArea

	if unionArea <= 0 {
		return 0.0
	}
	return interArea / unionArea
}

// unionEnvelope returns the smallest box containing all the given boxes.
func unionEnvelope(boxes []BoundingBox) BoundingBox {
	env := boxes[0]
	for _, b := range boxes[1:] {
		env.X1 = min(env.X1, b.X1)
		env.Y1 = min(env.Y1, b.Y1)
		env.X2 = max(env.X2, b.X2)
		env.Y2 = max(env.Y2, b.Y2)
	}
	return env
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
