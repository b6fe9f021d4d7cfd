package gleval

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlipRows(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 3))
	for y := 0; y < 3; y++ {
		for i := 0; i < 8; i++ {
			img.Pix[y*img.Stride+i] = byte(y)
		}
	}
	flipRows(img)
	for y := 0; y < 3; y++ {
		assert.Equal(t, byte(2-y), img.Pix[y*img.Stride], "row %d", y)
		assert.Equal(t, byte(2-y), img.Pix[y*img.Stride+7], "row %d", y)
	}
}
