package escpos

import (
	"bytes"
	"fmt"
	"image"
	"strings"
)

const (
	esc = 0x1b
	gs  = 0x1d
)

// MaxRasterWidth is the dot width of a standard 80mm thermal head.
// Wider images are rejected rather than silently clipped.
const MaxRasterWidth = 576

// DefaultThreshold is the luminance cutoff for raster conversion: pixels
// darker than this print black.
const DefaultThreshold = 128

// Job accumulates ESC/POS commands for one print run.
type Job struct {
	buf bytes.Buffer
}

// NewJob starts a job with the printer reset to its power-on state.
func NewJob() *Job {
	j := &Job{}
	j.buf.Write([]byte{esc, '@'})
	return j
}

// Text appends raw text. Line endings are normalised to LF, which
// ESC/POS treats as print-and-feed.
func (j *Job) Text(s string) *Job {
	j.buf.WriteString(strings.ReplaceAll(s, "\r\n", "\n"))
	return j
}

// Feed advances the paper n lines.
func (j *Job) Feed(n int) *Job {
	if n < 0 {
		n = 0
	}
	if n > 255 {
		n = 255
	}
	j.buf.Write([]byte{esc, 'd', byte(n)})
	return j
}

// PartialCut feeds clear of the print head and cuts, leaving the
// receipt hanging by its last strip.
func (j *Job) PartialCut() *Job {
	j.Feed(4)
	j.buf.Write([]byte{gs, 'V', 66, 0})
	return j
}

// Raster appends an image as a GS v 0 raster block. The image is
// converted to one bit per dot with a luminance threshold: no error
// diffusion, receipts want hard black-and-white edges.
func (j *Job) Raster(img image.Image, threshold uint8) error {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return fmt.Errorf("escpos: empty image")
	}
	if width > MaxRasterWidth {
		return fmt.Errorf("escpos: image width %d exceeds %d dots", width, MaxRasterWidth)
	}

	rowBytes := (width + 7) / 8
	data := make([]byte, rowBytes*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// ITU-R 601 luma on the 16-bit channel values.
			luma := (299*r + 587*g + 114*b) / 1000 >> 8
			if uint8(luma) < threshold {
				data[y*rowBytes+x/8] |= 0x80 >> uint(x%8)
			}
		}
	}

	j.buf.Write([]byte{gs, 'v', '0', 0,
		byte(rowBytes), byte(rowBytes >> 8),
		byte(height), byte(height >> 8),
	})
	j.buf.Write(data)
	return nil
}

// Bytes returns the accumulated job.
func (j *Job) Bytes() []byte {
	return j.buf.Bytes()
}
