// Package video implements the Video Worker (spec.md §4.2): face
// detection, embedding-based recognition against the consent
// registry, selective blurring, and label overlay. It is grounded on
// the teacher's gocv.CascadeClassifier-based FaceDetector, generalized
// from a check-in snapshot classifier into a per-frame pipeline stage.
package video

import (
	"fmt"
	"image"
	"sort"

	"gocv.io/x/gocv"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

// Detector wraps a Haar cascade classifier the way the teacher's
// FaceDetector does, minus the remote-recognition-API wiring that has
// no home in a fully local pipeline.
type Detector struct {
	classifier  gocv.CascadeClassifier
	minFaceSize int
}

// NewDetector loads the cascade from cascadePath. minFaceSize is the
// smallest face edge length, in pixels, considered valid.
func NewDetector(cascadePath string, minFaceSize int) (*Detector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		return nil, fmt.Errorf("video: failed to load face cascade classifier %s", cascadePath)
	}
	return &Detector{classifier: classifier, minFaceSize: minFaceSize}, nil
}

// Close releases the underlying classifier.
func (d *Detector) Close() error {
	return d.classifier.Close()
}

// Detect returns every face candidate in frame that meets the minimum
// size as models.FaceDetections, sorted largest-area-first with the
// tie-break spec.md §4.2 mandates: largest area, then smallest X, then
// smallest Y. Confidence is always 1.0: the Haar cascade classifier
// used here reports a binary detect/no-detect per window, not a
// continuous score. Name is left blank for the caller to fill in once
// it has matched (or failed to match) the detection against the
// consent registry.
func (d *Detector) Detect(frame gocv.Mat) []models.FaceDetection {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	rects := d.classifier.DetectMultiScale(gray)
	ranked := filterAndRank(rects, d.minFaceSize)

	detections := make([]models.FaceDetection, len(ranked))
	for i, r := range ranked {
		detections[i] = models.FaceDetection{Box: r, Confidence: 1.0}
	}
	return detections
}

// filterAndRank drops candidates below minFaceSize and orders the
// rest largest-area-first with the tie-break spec.md §4.2 mandates:
// largest area, then smallest X, then smallest Y. Split out from
// Detect so the ranking rule can be tested without a loaded cascade.
func filterAndRank(rects []image.Rectangle, minFaceSize int) []image.Rectangle {
	valid := make([]image.Rectangle, 0, len(rects))
	for _, r := range rects {
		if r.Dx() >= minFaceSize && r.Dy() >= minFaceSize {
			valid = append(valid, r)
		}
	}

	sort.Slice(valid, func(i, j int) bool {
		ai, aj := area(valid[i]), area(valid[j])
		if ai != aj {
			return ai > aj
		}
		if valid[i].Min.X != valid[j].Min.X {
			return valid[i].Min.X < valid[j].Min.X
		}
		return valid[i].Min.Y < valid[j].Min.Y
	})

	return valid
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

// Largest returns the first (largest, tie-broken) detection from an
// already-sorted Detect result, as used by the consent-capture path.
func Largest(detections []models.FaceDetection) (models.FaceDetection, bool) {
	if len(detections) == 0 {
		return models.FaceDetection{}, false
	}
	return detections[0], true
}
