package bitbang

import (
	"image"
	"image/color"

	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"

	"gopixel/core"
)

// Preview renders frames as a row of colored cells on the terminal.
type Preview struct {
	drawer display.Drawer
	pixels int
}

func NewPreview(numPixels int) *Preview {
	return &Preview{drawer: screen.New(numPixels), pixels: numPixels}
}

// Write draws buf, given in order.
func (p *Preview) Write(buf []byte, order core.ChannelOrder) error {
	return p.drawer.Draw(p.drawer.Bounds(), FrameImage(buf, order, p.pixels), image.Point{})
}

func (p *Preview) Close() error {
	return p.drawer.Halt()
}

// FrameImage decodes a strip buffer into a one-row image of n pixels.
// Missing pixels are black; a trailing partial triplet is ignored.
func FrameImage(buf []byte, order core.ChannelOrder, n int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, n, 1))
	for i := 0; i < n && i*3+2 < len(buf); i++ {
		a, b, c := buf[i*3], buf[i*3+1], buf[i*3+2]
		px := color.NRGBA{R: b, G: a, B: c, A: 0xFF}
		if order == core.OrderRGB {
			px.R, px.G = a, b
		}
		img.SetNRGBA(i, 0, px)
	}
	return img
}
