package image

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// ImagePreprocessor transforms an image before OCR.
type ImagePreprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// GrayscaleProcessor drops color information.
type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

// UpscaleProcessor enlarges small scans; tesseract works best around 300 DPI.
type UpscaleProcessor struct {
	minWidth int
}

func NewUpscaleProcessor(minWidth int) *UpscaleProcessor {
	return &UpscaleProcessor{minWidth: minWidth}
}

func (p *UpscaleProcessor) Process(img image.Image) (image.Image, error) {
	if p.minWidth <= 0 || img.Bounds().Dx() >= p.minWidth {
		return img, nil
	}
	return imaging.Resize(img, p.minWidth, 0, imaging.Lanczos), nil
}

// DeskewProcessor rotates the image by the angle that maximizes the
// variance of the horizontal ink projection.
type DeskewProcessor struct {
	angleLimit float64
	step       float64
}

func NewDeskewProcessor(angleLimit float64) *DeskewProcessor {
	return &DeskewProcessor{
		angleLimit: angleLimit,
		step:       0.5,
	}
}

func (p *DeskewProcessor) Process(img image.Image) (image.Image, error) {
	angle := p.detectSkewAngle(img)
	if angle == 0 || math.Abs(angle) > p.angleLimit {
		return img, nil
	}
	return imaging.Rotate(img, angle, color.White), nil
}

func (p *DeskewProcessor) detectSkewAngle(img image.Image) float64 {
	if p.angleLimit <= 0 {
		return 0
	}
	// score on a thumbnail; the full image is only rotated once
	thumb := imaging.Grayscale(imaging.Fit(img, 400, 400, imaging.Box))

	best, bestScore := 0.0, projectionScore(thumb)
	for a := -p.angleLimit; a <= p.angleLimit; a += p.step {
		if a == 0 {
			continue
		}
		score := projectionScore(imaging.Rotate(thumb, a, color.White))
		if score > bestScore {
			best, bestScore = a, score
		}
	}
	return best
}

func projectionScore(img image.Image) float64 {
	b := img.Bounds()
	if b.Dy() == 0 {
		return 0
	}
	rows := make([]float64, b.Dy())
	var mean float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		var ink float64
		for x := b.Min.X; x < b.Max.X; x++ {
			if color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y < 128 {
				ink++
			}
		}
		rows[y-b.Min.Y] = ink
		mean += ink
	}
	mean /= float64(len(rows))

	var variance float64
	for _, r := range rows {
		variance += (r - mean) * (r - mean)
	}
	return variance / float64(len(rows))
}

// ContrastNormalizationProcessor stretches contrast.
type ContrastNormalizationProcessor struct {
	amount float64
}

func NewContrastNormalizationProcessor(amount float64) *ContrastNormalizationProcessor {
	return &ContrastNormalizationProcessor{amount: amount}
}

func (p *ContrastNormalizationProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.amount), nil
}

// SharpenProcessor sharpens glyph edges.
type SharpenProcessor struct {
	sigma float64
}

func NewSharpenProcessor(sigma float64) *SharpenProcessor {
	return &SharpenProcessor{sigma: sigma}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	if p.sigma <= 0 {
		return img, nil
	}
	return imaging.Sharpen(img, p.sigma), nil
}
