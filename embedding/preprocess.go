package embedding

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// preprocessImage converts img into the model's input tensor layout:
// resize-to-fill to size x size with a triangle (bilinear) filter,
// center crop, RGB channels, pixel intensities rescaled from [0, 255]
// to [-1, 1], CHW order. The result has length 3*size*size.
//
// The resampling filter and crop are fixed so that re-encoding the same
// image always yields the same tensor.
func preprocessImage(img image.Image, size int) []float32 {
	rgba := resizeToFill(img, size)

	out := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := rgba.PixOffset(x, y)
			idx := y*size + x
			out[idx] = float32(rgba.Pix[i])*2/255 - 1
			out[plane+idx] = float32(rgba.Pix[i+1])*2/255 - 1
			out[2*plane+idx] = float32(rgba.Pix[i+2])*2/255 - 1
		}
	}
	return out
}

// resizeToFill scales img so the smaller dimension matches size while
// preserving aspect ratio, then crops the center square.
func resizeToFill(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	scaledW, scaledH := size, size
	if srcW > srcH {
		scaledW = srcW * size / srcH
	} else if srcH > srcW {
		scaledH = srcH * size / srcW
	}

	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	xdraw.BiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)

	offX := (scaledW - size) / 2
	offY := (scaledH - size) / 2
	cropped := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.Draw(cropped, cropped.Bounds(), scaled, image.Pt(offX, offY), xdraw.Src)
	return cropped
}
