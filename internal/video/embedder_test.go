package video

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"gocv.io/x/gocv"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, clamp(-5, 0, 100))
	assert.Equal(t, 100, clamp(150, 0, 100))
	assert.Equal(t, 42, clamp(42, 0, 100))
}

func TestExpandAndCenterFace_WidensWithinFrameBounds(t *testing.T) {
	box := image.Rect(50, 50, 100, 100)
	got := expandAndCenterFace(box, 200, 200, 0.2)

	assert.Less(t, got.Min.X, box.Min.X)
	assert.Less(t, got.Min.Y, box.Min.Y)
	assert.Greater(t, got.Max.X, box.Max.X)
	assert.Greater(t, got.Max.Y, box.Max.Y)
}

func TestExpandAndCenterFace_ClampsAtFrameEdges(t *testing.T) {
	box := image.Rect(0, 0, 20, 20)
	got := expandAndCenterFace(box, 200, 200, 0.5)

	assert.Equal(t, 0, got.Min.X)
	assert.Equal(t, 0, got.Min.Y)
}

func TestMakeSquare_SquareInputIsUnchanged(t *testing.T) {
	mat := gocv.NewMatWithSize(40, 40, gocv.MatTypeCV8UC3)
	defer mat.Close()

	squared := makeSquare(mat)
	defer squared.Close()

	assert.Equal(t, 40, squared.Cols())
	assert.Equal(t, 40, squared.Rows())
}

func TestMakeSquare_PadsShorterDimension(t *testing.T) {
	mat := gocv.NewMatWithSize(20, 60, gocv.MatTypeCV8UC3) // rows=20, cols=60
	defer mat.Close()

	squared := makeSquare(mat)
	defer squared.Close()

	assert.Equal(t, 60, squared.Cols())
	assert.Equal(t, 60, squared.Rows())
}
