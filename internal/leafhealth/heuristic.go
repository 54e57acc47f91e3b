// Package leafhealth estimates leaf health from a photo by measuring how much
// of it is green. It is a fixed color-ratio heuristic, not a classifier.
package leafhealth

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Raster geometry and classification constants.
const (
	Width       = 200
	Height      = 200
	GreenMargin = 10

	SevereBelow = 0.05
	HealthyFrom = 0.4

	// MaxPixels caps the declared width×height accepted for decoding.
	MaxPixels = 64_000_000
)

// ErrImageDecode marks payloads that could not be turned into an image.
var ErrImageDecode = errors.New("image could not be decoded")

// Category is an ordered severity level; higher is healthier.
type Category int

const (
	SevereDiscoloration Category = iota
	PartialDamage
	Healthy
)

func (c Category) String() string {
	switch c {
	case SevereDiscoloration:
		return "severe discoloration"
	case PartialDamage:
		return "partial damage"
	case Healthy:
		return "healthy"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// MarshalText encodes the category by name.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// HealthAssessment is computed fresh for every image.
type HealthAssessment struct {
	Ratio    float64  `json:"ratio"`
	Category Category `json:"category"`
	Analysis string   `json:"analysis"`
	Advice   string   `json:"advice"`
}

// Reply formats the assessment for the chat window.
func (a HealthAssessment) Reply() string {
	return fmt.Sprintf("🧪 Analysis: %s\n💡 Advice: %s", a.Analysis, a.Advice)
}

// AnalyzePayload strips an optional data-URL header ("data:image/png;base64,")
// and base64-decodes the rest before analyzing it.
func AnalyzePayload(payload string) (HealthAssessment, error) {
	raw, err := DecodePayload(payload)
	if err != nil {
		return HealthAssessment{}, err
	}
	return Analyze(raw)
}

// DecodePayload returns the image bytes carried by an optionally prefixed
// base64 payload.
func DecodePayload(payload string) ([]byte, error) {
	encoded := payload
	if i := strings.IndexByte(encoded, ','); i >= 0 {
		encoded = encoded[i+1:]
	}
	encoded = strings.Join(strings.Fields(encoded), "")
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrImageDecode)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// Some clients drop the padding.
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64: %v", ErrImageDecode, err)
		}
	}
	return raw, nil
}

// Analyze decodes raw image bytes and classifies the leaf.
func Analyze(raw []byte) (HealthAssessment, error) {
	if len(raw) == 0 {
		return HealthAssessment{}, fmt.Errorf("%w: empty image", ErrImageDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return HealthAssessment{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return HealthAssessment{}, fmt.Errorf("%w: image has no pixels", ErrImageDecode)
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return HealthAssessment{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageDecode, cfg.Width, cfg.Height, MaxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return HealthAssessment{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return HealthAssessment{}, fmt.Errorf("%w: image has no pixels", ErrImageDecode)
	}
	return Assess(GreenRatio(Rasterize(img))), nil
}

// Rasterize converts img to a Width×Height raster of straight (not
// premultiplied) colors. Images already at that size are copied pixel for
// pixel; others are scaled with a bicubic (Catmull-Rom) kernel.
func Rasterize(img image.Image) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, Width, Height))
	b := img.Bounds()
	if b.Dx() == Width && b.Dy() == Height {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// GreenDominant reports whether green exceeds both red and blue by more than
// GreenMargin on the 8-bit scale. Alpha is ignored.
func GreenDominant(c color.NRGBA) bool {
	r, g, b := int(c.R), int(c.G), int(c.B)
	return g > r+GreenMargin && g > b+GreenMargin
}

// GreenRatio is the fraction of green-dominant pixels in the raster.
func GreenRatio(img *image.NRGBA) float64 {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}
	greens := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if GreenDominant(img.NRGBAAt(x, y)) {
				greens++
			}
		}
	}
	return float64(greens) / float64(total)
}

// Assess maps a greenness ratio onto a category with its advice.
func Assess(ratio float64) HealthAssessment {
	switch {
	case ratio < SevereBelow:
		return HealthAssessment{
			Ratio:    ratio,
			Category: SevereDiscoloration,
			Analysis: "Severe discoloration detected",
			Advice:   "Possible disease or drought stress. Inspect plants closely and consider soil testing.",
		}
	case ratio < HealthyFrom:
		return HealthAssessment{
			Ratio:    ratio,
			Category: PartialDamage,
			Analysis: "Partial leaf damage",
			Advice:   "Early-stage pest or nutrient issue. Check for insects and consider fertilization.",
		}
	default:
		return HealthAssessment{
			Ratio:    ratio,
			Category: Healthy,
			Analysis: "Healthy leaf",
			Advice:   "Maintain consistent watering and sunlight. Continue current care routine.",
		}
	}
}
