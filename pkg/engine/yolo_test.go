package engine

import (
	"image"
	"image/color"
	"testing"

	"detectbench/internal/entity"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 8400, anchorCount(640))
	assert.Equal(t, 2100, anchorCount(320))
}

func TestLetterboxKeepsAspectRatio(t *testing.T) {
	src := imaging.New(1280, 720, color.NRGBA{R: 255, A: 255})

	boxed, lb := letterbox(src, 640)

	assert.Equal(t, image.Rect(0, 0, 640, 640), boxed.Bounds())
	assert.InDelta(t, 0.5, lb.Ratio, 1e-9)
	assert.Equal(t, 0.0, lb.PadX)
	assert.Equal(t, 140.0, lb.PadY)
	assert.Equal(t, 1280, lb.OrigW)
	assert.Equal(t, 720, lb.OrigH)

	assert.Equal(t, letterboxFill, boxed.NRGBAAt(10, 10))
	assert.Equal(t, uint8(255), boxed.NRGBAAt(320, 320).R)
}

func TestToCHW(t *testing.T) {
	img := imaging.New(2, 1, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	dst := make([]float32, 6)

	toCHW(img, dst)

	assert.Equal(t, []float32{1, 1, 0, 0, 0.2, 0.2}, dst)
}

// head builds a channel-major output with the given anchors.
func head(numClasses int, anchors [][]float32) []float32 {
	n := len(anchors)
	data := make([]float32, (4+numClasses)*n)
	for i, a := range anchors {
		for c, v := range a {
			data[c*n+i] = v
		}
	}
	return data
}

func TestDecodeOutput(t *testing.T) {
	lb := entity.Letterbox{Ratio: 1, OrigW: 640, OrigH: 640}
	data := head(3, [][]float32{
		{100, 100, 20, 40, 0.1, 0.9, 0.2},
		{300, 300, 10, 10, 0.1, 0.1, 0.2},
		{500, 500, 50, 50, 0.7, 0.0, 0.0},
	})

	boxes := decodeOutput(data, 3, 3, 0.25, lb)

	require.Len(t, boxes, 2)
	assert.Equal(t, 1, boxes[0].Cls)
	assert.InDelta(t, 0.9, boxes[0].Conf, 1e-6)
	assert.InDelta(t, 90, boxes[0].X1, 1e-6)
	assert.InDelta(t, 80, boxes[0].Y1, 1e-6)
	assert.InDelta(t, 110, boxes[0].X2, 1e-6)
	assert.InDelta(t, 120, boxes[0].Y2, 1e-6)
	assert.Equal(t, 0, boxes[1].Cls)
}

func TestDecodeOutputMapsBackToOriginal(t *testing.T) {
	lb := entity.Letterbox{Ratio: 0.5, PadX: 0, PadY: 140, OrigW: 1280, OrigH: 720}
	data := head(1, [][]float32{{320, 320, 100, 100, 0.8}})

	boxes := decodeOutput(data, 1, 1, 0.25, lb)

	require.Len(t, boxes, 1)
	assert.InDelta(t, 540, boxes[0].X1, 1e-6)
	assert.InDelta(t, 260, boxes[0].Y1, 1e-6)
	assert.InDelta(t, 740, boxes[0].X2, 1e-6)
	assert.InDelta(t, 460, boxes[0].Y2, 1e-6)
}

func TestNMSIsPerClass(t *testing.T) {
	boxes := []entity.Box{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Cls: 0, Conf: 0.9},
		{X1: 1, Y1: 1, X2: 11, Y2: 11, Cls: 0, Conf: 0.8},
		{X1: 1, Y1: 1, X2: 11, Y2: 11, Cls: 1, Conf: 0.7},
		{X1: 50, Y1: 50, X2: 60, Y2: 60, Cls: 0, Conf: 0.6},
	}

	kept := nms(boxes, 0.45, MaxDetections)

	require.Len(t, kept, 3)
	assert.Equal(t, 0.9, kept[0].Conf)
	assert.Equal(t, 1, kept[1].Cls)
	assert.Equal(t, 0.6, kept[2].Conf)
}

func TestNMSRespectsMaxDetections(t *testing.T) {
	boxes := []entity.Box{
		{X1: 0, Y1: 0, X2: 1, Y2: 1, Conf: 0.9},
		{X1: 5, Y1: 5, X2: 6, Y2: 6, Conf: 0.8},
		{X1: 9, Y1: 9, X2: 10, Y2: 10, Conf: 0.7},
	}
	assert.Len(t, nms(boxes, 0.45, 2), 2)
}

func TestIoU(t *testing.T) {
	a := entity.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}
	b := entity.Box{X1: 5, Y1: 0, X2: 15, Y2: 10}

	assert.InDelta(t, 50.0/150.0, iou(a, b), 1e-9)
	assert.Equal(t, 0.0, iou(a, entity.Box{X1: 20, Y1: 20, X2: 30, Y2: 30}))
}
