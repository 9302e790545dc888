package images

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// fingerprintSize is the edge of the grayscale square both images are
// reduced to before comparing.
const fingerprintSize = 32

// Similarity scores two images from 0 (opposite) to 100 (identical) by the
// mean absolute difference of their grayscale fingerprints. It is a stand-in
// for a face comparison and knows nothing about faces.
func Similarity(a, b image.Image) float64 {
	fa := fingerprint(a)
	fb := fingerprint(b)

	var total float64
	for i := range fa.Pix {
		total += math.Abs(float64(fa.Pix[i]) - float64(fb.Pix[i]))
	}
	mean := total / float64(len(fa.Pix))
	score := 100 * (1 - mean/255)
	return math.Round(score*100) / 100
}

func fingerprint(img image.Image) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, fingerprintSize, fingerprintSize))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}
