package transport

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func TestBuildJobText(t *testing.T) {
	job, err := buildJob([]byte("HELLO\n"), false)
	if err != nil {
		t.Fatalf("buildJob: %v", err)
	}

	if !bytes.HasPrefix(job, []byte{0x1b, '@'}) {
		t.Error("job does not start with printer init")
	}
	if !bytes.Contains(job, []byte("HELLO\n")) {
		t.Error("payload text missing")
	}
	if !bytes.Contains(job, []byte{0x1d, 'V', 66, 0}) {
		t.Error("partial cut missing")
	}
}

func TestBuildJobImage(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	job, err := buildJob(buf.Bytes(), true)
	if err != nil {
		t.Fatalf("buildJob: %v", err)
	}
	if !bytes.Contains(job, []byte{0x1d, 'v', '0', 0}) {
		t.Error("raster block missing")
	}
}

func TestBuildJobBadImage(t *testing.T) {
	if _, err := buildJob([]byte("not an image"), true); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestParseUSBID(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{in: "04b8", want: 0x04b8},
		{in: "0x04B8", want: 0x04b8},
		{in: "zzzz", wantErr: true},
		{in: "", wantErr: true},
		{in: "12345", wantErr: true}, // overflows 16 bits
	}

	for _, tt := range tests {
		got, err := parseUSBID(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseUSBID(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseUSBID(%q): %v", tt.in, err)
			continue
		}
		if uint16(got) != tt.want {
			t.Errorf("parseUSBID(%q) = %#x, want %#x", tt.in, uint16(got), tt.want)
		}
	}
}
