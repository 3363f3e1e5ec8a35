package media

import (
	"image"

	// PNG decoder for ffmpeg image2pipe output
	_ "image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// Fit scales img down so its long edge is at most maxSize, using a
// high-quality Lanczos filter. Images already within bounds are returned
// unchanged.
func Fit(img image.Image, maxSize int) image.Image {
	if !needsFit(img, maxSize) {
		return img
	}
	return imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
}

// FitFast scales img down like Fit with an approximate bilinear filter,
// for bulk thumbnails where latency matters more than quality.
func FitFast(img image.Image, maxSize int) image.Image {
	if !needsFit(img, maxSize) {
		return img
	}
	w, h := fitSize(img.Bounds().Dx(), img.Bounds().Dy(), maxSize)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func needsFit(img image.Image, maxSize int) bool {
	b := img.Bounds()
	return maxSize > 0 && (b.Dx() > maxSize || b.Dy() > maxSize)
}

// fitSize returns width x height scaled to fit within maxSize, keeping
// aspect ratio and at least one pixel per side.
func fitSize(width, height, maxSize int) (int, int) {
	if width >= height {
		h := height * maxSize / width
		return maxSize, max(h, 1)
	}
	w := width * maxSize / height
	return max(w, 1), maxSize
}
