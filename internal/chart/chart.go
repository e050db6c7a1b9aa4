// Package chart draws the status graph attached to a report.
package chart

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"statusbot/internal/status"
)

const (
	Width  = 800
	Height = 400

	padLeft   = 48
	padRight  = 16
	padTop    = 32
	padBottom = 48
	barGap    = 12
	maxBars   = 24
)

var (
	bgColor    = color.RGBA{0x2b, 0x2d, 0x31, 0xff}
	gridColor  = color.RGBA{0x40, 0x44, 0x4b, 0xff}
	textColor  = color.RGBA{0xdc, 0xdd, 0xde, 0xff}
	upColor    = color.RGBA{0x3b, 0xa5, 0x5d, 0xff}
	slowColor  = color.RGBA{0xfa, 0xa6, 0x1a, 0xff}
	downColor  = color.RGBA{0xed, 0x42, 0x45, 0xff}
	emptyColor = color.RGBA{0x8e, 0x92, 0x97, 0xff}
)

// Render draws one bar per service (uptime %, colored by health) and encodes
// it as PNG. It matches status.ChartFunc.
func Render(ctx context.Context, records []status.ServiceRecord, _ status.Settings, kind string) ([]byte, error) {
	if kind != status.ChartKindStatus {
		return nil, fmt.Errorf("chart: unsupported kind %q", kind)
	}
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{bgColor}, image.Point{}, draw.Src)

	plot := image.Rect(padLeft, padTop, Width-padRight, Height-padBottom)
	drawGrid(img, plot)
	label(img, padLeft, padTop-12, fmt.Sprintf("Service uptime  %s", time.Now().UTC().Format("2006-01-02 15:04 UTC")))

	if len(records) == 0 {
		label(img, plot.Min.X+plot.Dx()/2-60, plot.Min.Y+plot.Dy()/2, "no services configured")
		return encode(ctx, img)
	}

	shown := records
	if len(shown) > maxBars {
		shown = shown[:maxBars]
	}
	slot := plot.Dx() / len(shown)
	barW := slot - barGap
	if barW < 2 {
		barW = 2
	}
	for i, r := range shown {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pct := r.UptimePct()
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
		h := int(float64(plot.Dy()) * pct / 100)
		if h < 2 {
			h = 2
		}
		x0 := plot.Min.X + i*slot + barGap/2
		bar := image.Rect(x0, plot.Max.Y-h, x0+barW, plot.Max.Y)
		draw.Draw(img, bar, &image.Uniform{barColor(r)}, image.Point{}, draw.Src)
		label(img, x0, plot.Max.Y+14, clip(r.Name, barW))
		label(img, x0, plot.Max.Y+28, clip(fmt.Sprintf("%dms", r.ResponseTimeMs), barW))
	}
	return encode(ctx, img)
}

func barColor(r status.ServiceRecord) color.Color {
	switch {
	case r.CheckCount == 0:
		return emptyColor
	case !r.IsUp:
		return downColor
	case r.ResponseTimeMs > status.DegradedThresholdMs:
		return slowColor
	default:
		return upColor
	}
}

func drawGrid(img *image.RGBA, plot image.Rectangle) {
	for _, pct := range []int{0, 25, 50, 75, 100} {
		y := plot.Max.Y - plot.Dy()*pct/100
		draw.Draw(img, image.Rect(plot.Min.X, y, plot.Max.X, y+1), &image.Uniform{gridColor}, image.Point{}, draw.Src)
		label(img, 8, y+4, fmt.Sprintf("%d%%", pct))
	}
}

func label(img *image.RGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(textColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// clip shortens s to fit px pixels of the 7px-wide face.
func clip(s string, px int) string {
	maxRunes := px / basicfont.Face7x13.Advance
	r := []rune(s)
	if maxRunes <= 0 {
		return ""
	}
	if len(r) <= maxRunes {
		return s
	}
	if maxRunes == 1 {
		return string(r[:1])
	}
	return string(r[:maxRunes-1]) + "…"
}

func encode(ctx context.Context, img image.Image) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("chart: encode png: %w", err)
	}
	return buf.Bytes(), nil
}
