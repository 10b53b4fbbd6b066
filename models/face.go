package models

import (
	"image"
	"time"
)

// FaceDetection is a candidate face found in one video frame.
type FaceDetection struct {
	Box        image.Rectangle
	Confidence float64
	// Name is filled in by the recognizer: the matched registry name,
	// or "unknown" when no embedding in the registry meets the match
	// threshold.
	Name string
}

// Area returns the pixel area of the detection's box. Largest-face
// ranking (spec.md §4.2) is done on the raw rectangles by the video
// package's detector, not through this method.
func (d FaceDetection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

// FaceEmbedding is a fixed-length numeric vector produced by the
// recognition model from an aligned face crop. Never persisted;
// always derived on demand from a capture image or a live frame crop.
type FaceEmbedding []float32

// ConsentRecord is one parsed capture file on disk.
type ConsentRecord struct {
	// ID is the filename stem: YYYYMMDDHHMMSS_<name>[_<n>].
	ID        string
	Name      string
	Timestamp time.Time
	Embedding FaceEmbedding
	Path      string
}
