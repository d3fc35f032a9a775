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

func TestRenderDrawsOnCopy(t *testing.T) {
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	src := imaging.New(200, 200, white)
	r := NewRenderer(COCOLabels)

	out, err := r.Render(src, []entity.Box{{X1: 50, Y1: 50, X2: 150, Y2: 150, Cls: 0, Conf: 0.87}})
	require.NoError(t, err)

	assert.Equal(t, src.Bounds(), out.Bounds())
	assert.Equal(t, white, src.NRGBAAt(50, 100), "source must stay untouched")

	edge := color.NRGBAModel.Convert(out.At(50, 100)).(color.NRGBA)
	assert.Equal(t, palette[0], edge)
	inside := color.NRGBAModel.Convert(out.At(100, 100)).(color.NRGBA)
	assert.Equal(t, white, inside)
}

func TestRenderSkipsBoxesOutsideImage(t *testing.T) {
	src := imaging.New(20, 20, color.NRGBA{A: 255})
	out, err := NewRenderer(COCOLabels).Render(src, []entity.Box{{X1: 100, Y1: 100, X2: 120, Y2: 120}})

	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 20), out.Bounds())
}

func TestRenderNilImage(t *testing.T) {
	_, err := NewRenderer(COCOLabels).Render(nil, nil)
	assert.Error(t, err)
}

func TestLabelFor(t *testing.T) {
	assert.Equal(t, "person", labelFor(COCOLabels, 0))
	assert.Equal(t, "toothbrush", labelFor(COCOLabels, 79))
	assert.Equal(t, "class_80", labelFor(COCOLabels, 80))
}
