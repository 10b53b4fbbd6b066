package video

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PrivacyIsAllYouNeed/protector/models"
)

func TestFilterAndRank_DropsBelowMinimumSize(t *testing.T) {
	rects := []image.Rectangle{
		image.Rect(0, 0, 10, 10),
		image.Rect(0, 0, 100, 100),
	}
	got := filterAndRank(rects, 60)
	assert.Len(t, got, 1)
	assert.Equal(t, image.Rect(0, 0, 100, 100), got[0])
}

func TestFilterAndRank_OrdersLargestFirst(t *testing.T) {
	rects := []image.Rectangle{
		image.Rect(0, 0, 60, 60),
		image.Rect(0, 0, 120, 120),
		image.Rect(0, 0, 90, 90),
	}
	got := filterAndRank(rects, 10)
	assert.Equal(t, 120*120, area(got[0]))
	assert.Equal(t, 90*90, area(got[1]))
	assert.Equal(t, 60*60, area(got[2]))
}

func TestFilterAndRank_TieBreaksBySmallestXThenY(t *testing.T) {
	rects := []image.Rectangle{
		image.Rect(50, 5, 150, 105),
		image.Rect(10, 20, 110, 120),
		image.Rect(10, 5, 110, 105),
	}
	got := filterAndRank(rects, 10)
	assert.Equal(t, image.Rect(10, 5, 110, 105), got[0])
	assert.Equal(t, image.Rect(10, 20, 110, 120), got[1])
	assert.Equal(t, image.Rect(50, 5, 150, 105), got[2])
}

func TestLargest_EmptyDetectionsList(t *testing.T) {
	_, found := Largest(nil)
	assert.False(t, found)
}

func TestLargest_ReturnsFirst(t *testing.T) {
	det, found := Largest([]models.FaceDetection{{Box: image.Rect(0, 0, 10, 10), Confidence: 1.0}})
	assert.True(t, found)
	assert.Equal(t, image.Rect(0, 0, 10, 10), det.Box)
}
