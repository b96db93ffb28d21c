package escpos

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestNewJobStartsWithInit(t *testing.T) {
	got := NewJob().Bytes()
	if !bytes.Equal(got, []byte{0x1b, '@'}) {
		t.Errorf("empty job = %v, want ESC @", got)
	}
}

func TestTextAndCut(t *testing.T) {
	got := NewJob().Text("TOTAL 9.99\n").PartialCut().Bytes()

	if !bytes.Contains(got, []byte("TOTAL 9.99\n")) {
		t.Error("text missing from job")
	}
	if !bytes.Contains(got, []byte{0x1d, 'V', 66, 0}) {
		t.Error("partial cut missing from job")
	}
	// The cut must come after the text.
	if bytes.Index(got, []byte("TOTAL")) > bytes.Index(got, []byte{0x1d, 'V', 66, 0}) {
		t.Error("cut emitted before text")
	}
}

func TestTextNormalisesCRLF(t *testing.T) {
	got := NewJob().Text("LINE 1\r\nLINE 2\r\n").Bytes()

	if bytes.Contains(got, []byte{'\r'}) {
		t.Errorf("job = %v, want no carriage returns", got)
	}
	if !bytes.Contains(got, []byte("LINE 1\nLINE 2\n")) {
		t.Error("normalised text missing from job")
	}
}

func TestFeedClamps(t *testing.T) {
	got := NewJob().Feed(1000).Bytes()
	if !bytes.Contains(got, []byte{0x1b, 'd', 255}) {
		t.Errorf("feed not clamped: %v", got)
	}
}

func TestRasterEncodesThreshold(t *testing.T) {
	// Two pixels wide, one row: black then white.
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 0})
	img.SetGray(1, 0, color.Gray{Y: 255})

	j := NewJob()
	if err := j.Raster(img, DefaultThreshold); err != nil {
		t.Fatalf("Raster: %v", err)
	}
	got := j.Bytes()

	// GS v 0, mode 0, 1 byte per row, 1 row, then the bit for pixel 0.
	want := []byte{0x1d, 'v', '0', 0, 1, 0, 1, 0, 0x80}
	if !bytes.Contains(got, want) {
		t.Errorf("job = %v, want raster block %v", got, want)
	}
}

func TestRasterRejectsOversizedImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, MaxRasterWidth+1, 1))
	if err := NewJob().Raster(img, DefaultThreshold); err == nil {
		t.Fatal("expected width error")
	}
}

func TestRasterRejectsEmptyImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 0, 0))
	if err := NewJob().Raster(img, DefaultThreshold); err == nil {
		t.Fatal("expected empty-image error")
	}
}
