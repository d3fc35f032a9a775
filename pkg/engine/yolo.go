package engine

import (
	"image"
	"image/color"
	"math"
	"sort"

	"detectbench/internal/entity"

	"github.com/disintegration/imaging"
)

const (
	DefaultInputSize     = 640
	DefaultConfThreshold = 0.25
	DefaultIoUThreshold  = 0.45
	PreNMSTopK           = 600
	MaxDetections        = 300
)

var letterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox scales img to fit a size×size square, keeping the aspect ratio,
// and pads the rest with gray.
func letterbox(img image.Image, size int) (*image.NRGBA, entity.Letterbox) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	ratio := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := int(math.Round(float64(w) * ratio))
	nh := int(math.Round(float64(h) * ratio))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	padX := (size - nw) / 2
	padY := (size - nh) / 2

	resized := imaging.Resize(img, nw, nh, imaging.Linear)
	canvas := imaging.New(size, size, letterboxFill)
	canvas = imaging.Paste(canvas, resized, image.Pt(padX, padY))

	return canvas, entity.Letterbox{
		Ratio: ratio,
		PadX:  float64(padX),
		PadY:  float64(padY),
		OrigW: w,
		OrigH: h,
	}
}

// toCHW writes the RGB planes of img into dst scaled to [0,1].
func toCHW(img *image.NRGBA, dst []float32) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			i := y*w + x
			dst[i] = float32(row[x*4]) / 255.0
			dst[plane+i] = float32(row[x*4+1]) / 255.0
			dst[plane*2+i] = float32(row[x*4+2]) / 255.0
		}
	}
}

func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := size / stride
		n += side * side
	}
	return n
}

// decodeOutput reads a channel-major [4+classes, anchors] YOLOv8 head.
func decodeOutput(data []float32, numClasses, numAnchors int, confThreshold float32, lb entity.Letterbox) []entity.Box {
	boxes := make([]entity.Box, 0, 64)
	for i := 0; i < numAnchors; i++ {
		bestCls := -1
		var bestConf float32
		for c := 0; c < numClasses; c++ {
			score := data[(4+c)*numAnchors+i]
			if score > bestConf {
				bestConf = score
				bestCls = c
			}
		}
		if bestCls < 0 || bestConf < confThreshold {
			continue
		}

		cx := float64(data[i])
		cy := float64(data[numAnchors+i])
		w := float64(data[2*numAnchors+i])
		h := float64(data[3*numAnchors+i])

		box := lb.Unmap(entity.Box{
			X1:   cx - w/2,
			Y1:   cy - h/2,
			X2:   cx + w/2,
			Y2:   cy + h/2,
			Cls:  bestCls,
			Conf: math.Min(1, math.Max(0, float64(bestConf))),
		})
		boxes = append(boxes, box)
	}

	sort.SliceStable(boxes, func(a, b int) bool {
		return boxes[a].Conf > boxes[b].Conf
	})
	if len(boxes) > PreNMSTopK {
		boxes = boxes[:PreNMSTopK]
	}
	return boxes
}

// nms suppresses overlapping boxes per class. Input must be sorted by
// descending confidence; output keeps that order.
func nms(boxes []entity.Box, iouThreshold float64, maxDet int) []entity.Box {
	picked := make([]entity.Box, 0, len(boxes))
	suppressed := make([]bool, len(boxes))

	for i := range boxes {
		if suppressed[i] {
			continue
		}
		picked = append(picked, boxes[i])
		if len(picked) == maxDet {
			break
		}
		for j := i + 1; j < len(boxes); j++ {
			if suppressed[j] || boxes[j].Cls != boxes[i].Cls {
				continue
			}
			if iou(boxes[i], boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return picked
}

func iou(a, b entity.Box) float64 {
	ix1 := math.Max(a.X1, b.X1)
	iy1 := math.Max(a.Y1, b.Y1)
	ix2 := math.Min(a.X2, b.X2)
	iy2 := math.Min(a.Y2, b.Y2)

	inter := math.Max(0, ix2-ix1) * math.Max(0, iy2-iy1)
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(b entity.Box) float64 {
	return math.Max(0, b.X2-b.X1) * math.Max(0, b.Y2-b.Y1)
}
