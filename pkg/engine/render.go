package engine

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"detectbench/internal/entity"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var palette = []color.NRGBA{
	{R: 255, G: 56, B: 56, A: 255},
	{R: 255, G: 157, B: 151, A: 255},
	{R: 255, G: 112, B: 31, A: 255},
	{R: 255, G: 178, B: 29, A: 255},
	{R: 207, G: 210, B: 49, A: 255},
	{R: 72, G: 249, B: 10, A: 255},
	{R: 146, G: 204, B: 23, A: 255},
	{R: 61, G: 219, B: 134, A: 255},
	{R: 26, G: 147, B: 52, A: 255},
	{R: 0, G: 212, B: 187, A: 255},
	{R: 44, G: 153, B: 168, A: 255},
	{R: 0, G: 194, B: 255, A: 255},
	{R: 52, G: 69, B: 147, A: 255},
	{R: 100, G: 115, B: 255, A: 255},
	{R: 0, G: 24, B: 236, A: 255},
	{R: 132, G: 56, B: 255, A: 255},
}

// Renderer draws boxes and "label conf" tags onto a copy of the image.
type Renderer struct {
	labels []string
	face   font.Face
}

func NewRenderer(labels []string) Renderer {
	return Renderer{
		labels: labels,
		face:   basicfont.Face7x13,
	}
}

func (r Renderer) Render(img image.Image, boxes []entity.Box) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("render: nil image")
	}

	canvas := imaging.Clone(img)
	bounds := canvas.Bounds()
	thickness := int(math.Max(2, math.Round(float64(bounds.Dx()+bounds.Dy())/2*0.003)))

	for _, b := range boxes {
		col := palette[((b.Cls%len(palette))+len(palette))%len(palette)]
		rect := image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		drawOutline(canvas, rect, col, thickness)
		r.drawLabel(canvas, rect, col, fmt.Sprintf("%s %.2f", labelFor(r.labels, b.Cls), b.Conf))
	}

	return canvas, nil
}

func drawOutline(dst draw.Image, rect image.Rectangle, col color.Color, t int) {
	src := image.NewUniform(col)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+t),
		image.Rect(rect.Min.X, rect.Max.Y-t, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+t, rect.Max.Y),
		image.Rect(rect.Max.X-t, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(rect), src, image.Point{}, draw.Src)
	}
}

func (r Renderer) drawLabel(dst draw.Image, rect image.Rectangle, col color.Color, text string) {
	metrics := r.face.Metrics()
	height := (metrics.Ascent + metrics.Descent).Ceil() + 2
	width := font.MeasureString(r.face, text).Ceil() + 4

	top := rect.Min.Y - height
	if top < dst.Bounds().Min.Y {
		top = rect.Min.Y
	}
	bg := image.Rect(rect.Min.X, top, rect.Min.X+width, top+height).Intersect(dst.Bounds())
	draw.Draw(dst, bg, image.NewUniform(col), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.White),
		Face: r.face,
		Dot:  fixed.P(rect.Min.X+2, top+1+metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
}
