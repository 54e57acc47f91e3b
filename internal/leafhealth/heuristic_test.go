package leafhealth

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

var (
	leafGreen = color.NRGBA{R: 40, G: 160, B: 50, A: 255}
	soilBrown = color.NRGBA{R: 120, G: 90, B: 40, A: 255}
)

// syntheticPNG paints the first greens pixels (row-major) green and the rest brown.
func syntheticPNG(t *testing.T, w, h, greens int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if i < greens {
				img.SetNRGBA(x, y, leafGreen)
			} else {
				img.SetNRGBA(x, y, soilBrown)
			}
			i++
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestAnalyze_Boundaries(t *testing.T) {
	tests := []struct {
		name     string
		greens   int
		ratio    float64
		category Category
	}{
		{"all green", 40000, 1.0, Healthy},
		{"no green", 0, 0.0, SevereDiscoloration},
		{"exactly five percent", 2000, 0.05, PartialDamage},
		{"just under five percent", 1999, 0.049975, SevereDiscoloration},
		{"just under forty percent", 15999, 0.399975, PartialDamage},
		{"exactly forty percent", 16000, 0.4, Healthy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Analyze(syntheticPNG(t, Width, Height, tc.greens))
			require.NoError(t, err)
			assert.InDelta(t, tc.ratio, got.Ratio, 1e-12)
			assert.Equal(t, tc.category, got.Category)
		})
	}
}

func TestAnalyze_Labels(t *testing.T) {
	healthy, err := Analyze(syntheticPNG(t, Width, Height, 40000))
	require.NoError(t, err)
	assert.Equal(t, "Healthy leaf", healthy.Analysis)
	assert.Equal(t, "healthy", healthy.Category.String())
	assert.Equal(t, "🧪 Analysis: Healthy leaf\n💡 Advice: Maintain consistent watering and sunlight. Continue current care routine.", healthy.Reply())

	severe, err := Analyze(syntheticPNG(t, Width, Height, 0))
	require.NoError(t, err)
	assert.Equal(t, "severe discoloration", severe.Category.String())
	assert.Contains(t, severe.Advice, "soil testing")
}

func TestAnalyze_ScalesOtherSizes(t *testing.T) {
	big, err := Analyze(syntheticPNG(t, 640, 480, 640*480))
	require.NoError(t, err)
	assert.Equal(t, 1.0, big.Ratio)

	tiny, err := Analyze(syntheticPNG(t, 3, 2, 0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, tiny.Ratio)
}

func TestRasterize_ScalesBicubic(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 257, 131))
	for y := 0; y < 131; y++ {
		for x := 0; x < 257; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(2 * y), B: uint8(x ^ y), A: 255})
		}
	}
	want := image.NewNRGBA(image.Rect(0, 0, Width, Height))
	draw.CatmullRom.Scale(want, want.Bounds(), src, src.Bounds(), draw.Src, nil)

	assert.Equal(t, want.Pix, Rasterize(src).Pix)
}

func TestAnalyze_Deterministic(t *testing.T) {
	data := syntheticPNG(t, 257, 131, 9000)
	first, err := Analyze(data)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Analyze(data)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAnalyze_DecodeErrors(t *testing.T) {
	inputs := map[string][]byte{
		"nil":       nil,
		"empty":     {},
		"text":      []byte("definitely not an image"),
		"truncated": syntheticPNG(t, Width, Height, 10)[:40],
		"oversized": pngHeader(15000, 15000),
	}
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := Analyze(raw)
			assert.ErrorIs(t, err, ErrImageDecode)
		})
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring a w×h grayscale
// image, with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	binary.Write(&ihdr, binary.BigEndian, w)
	binary.Write(&ihdr, binary.BigEndian, h)
	ihdr.Write([]byte{8, 0, 0, 0, 0})

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(ihdr.Len()-4))
	buf.Write(ihdr.Bytes())
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))
	return buf.Bytes()
}

func TestAnalyze_RejectsOversizedDimensions(t *testing.T) {
	header := pngHeader(15000, 15000)
	cfg, err := png.DecodeConfig(bytes.NewReader(header))
	require.NoError(t, err, "the header alone is a valid PNG config")
	assert.Equal(t, 15000, cfg.Width)

	_, err = Analyze(header)
	require.ErrorIs(t, err, ErrImageDecode)
	assert.Contains(t, err.Error(), "exceeds")

	_, err = AnalyzePayload("data:image/png;base64," + base64.StdEncoding.EncodeToString(header))
	assert.ErrorIs(t, err, ErrImageDecode)
}

func TestAnalyzePayload(t *testing.T) {
	raw := syntheticPNG(t, Width, Height, 40000)
	encoded := base64.StdEncoding.EncodeToString(raw)

	payloads := map[string]string{
		"data url":      "data:image/png;base64," + encoded,
		"bare base64":   encoded,
		"unpadded":      base64.RawStdEncoding.EncodeToString(raw),
		"with newlines": encoded[:100] + "\n" + encoded[100:],
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			got, err := AnalyzePayload(payload)
			require.NoError(t, err)
			assert.Equal(t, Healthy, got.Category)
		})
	}
}

func TestAnalyzePayload_Errors(t *testing.T) {
	payloads := map[string]string{
		"empty":             "",
		"header only":       "data:image/png;base64,",
		"bad base64":        "data:image/png;base64,!!!not-base64!!!",
		"valid base64 text": base64.StdEncoding.EncodeToString([]byte("hello leaf")),
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			_, err := AnalyzePayload(payload)
			assert.ErrorIs(t, err, ErrImageDecode)
		})
	}
}

func TestGreenDominant(t *testing.T) {
	assert.False(t, GreenDominant(color.NRGBA{R: 100, G: 110, B: 0}), "margin is strict")
	assert.True(t, GreenDominant(color.NRGBA{R: 100, G: 111, B: 100}))
	assert.False(t, GreenDominant(color.NRGBA{R: 0, G: 111, B: 101}))
	assert.False(t, GreenDominant(color.NRGBA{R: 255, G: 255, B: 255}))
}

func TestAssess_Thresholds(t *testing.T) {
	assert.Equal(t, SevereDiscoloration, Assess(0).Category)
	assert.Equal(t, SevereDiscoloration, Assess(0.0499999).Category)
	assert.Equal(t, PartialDamage, Assess(0.05).Category)
	assert.Equal(t, PartialDamage, Assess(0.3999).Category)
	assert.Equal(t, Healthy, Assess(0.4).Category)
	assert.Equal(t, Healthy, Assess(1).Category)
	assert.True(t, SevereDiscoloration < PartialDamage && PartialDamage < Healthy)
}

func TestHealthAssessment_JSON(t *testing.T) {
	b, err := json.Marshal(Assess(0.2))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"category":"partial damage"`)
}
