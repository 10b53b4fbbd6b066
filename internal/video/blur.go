package video

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// labelColor is a legible color for the name drawn above consented
// faces (bright green, readable against most backgrounds).
var labelColor = color.RGBA{R: 0, G: 220, B: 0, A: 0}

// blurRegion applies a separable Gaussian blur to the pixels under
// box, sized proportionally so small faces become unidentifiable too
// (spec.md §4.2 step 4). The kernel must be odd; we derive it from
// the box's shorter side.
func blurRegion(frame gocv.Mat, box image.Rectangle) {
	box = box.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if box.Empty() {
		return
	}

	roi := frame.Region(box)
	defer roi.Close()

	kernel := blurKernelFor(box)
	gocv.GaussianBlur(roi, &roi, image.Pt(kernel, kernel), 0, 0, gocv.BorderDefault)
}

// blurKernelFor derives an odd kernel size proportional to a box's
// shorter edge so distant, small faces are blurred at least as
// aggressively (relatively) as large, close ones.
func blurKernelFor(box image.Rectangle) int {
	side := box.Dx()
	if box.Dy() < side {
		side = box.Dy()
	}

	k := side / 3
	if k < 9 {
		k = 9
	}
	if k%2 == 0 {
		k++
	}
	return k
}

// blurWholeFrame is the fail-closed fallback used when face detection
// itself fails: rather than pass the frame through unmodified
// (fail-open, forbidden by the privacy guarantee), the entire frame is
// blurred.
func blurWholeFrame(frame gocv.Mat) {
	gocv.GaussianBlur(frame, &frame, image.Pt(51, 51), 0, 0, gocv.BorderDefault)
}

// drawLabel writes name above box in a legible color, the way the
// teacher overlays status text on its preview frames.
func drawLabel(frame gocv.Mat, box image.Rectangle, name string) {
	origin := image.Pt(box.Min.X, box.Min.Y-8)
	if origin.Y < 12 {
		origin.Y = 12
	}
	gocv.PutText(&frame, name, origin, gocv.FontHersheySimplex, 0.7, labelColor, 2)
	gocv.Rectangle(&frame, box, labelColor, 2)
}
