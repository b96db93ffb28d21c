package spooler

import "testing"

func TestParseHardwareID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantVid string
		wantPid string
		wantOK  bool
	}{
		{
			name:    "usb pnp id",
			in:      `USB\VID_04B8&PID_0202\5&2a9f7e0&0&2`,
			wantVid: "04B8",
			wantPid: "0202",
			wantOK:  true,
		},
		{
			name:    "usbprint pnp id",
			in:      `USBPRINT\EpsonTM-T20\6&12ab34cd`,
			wantOK:  false,
		},
		{
			name:    "lower case",
			in:      `usb\vid_0dd4&pid_0205`,
			wantVid: "0dd4",
			wantPid: "0205",
			wantOK:  true,
		},
		{
			name:   "plain port name",
			in:     "USB001",
			wantOK: false,
		},
		{
			name:   "empty",
			in:     "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vid, pid, ok := ParseHardwareID(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if vid != tt.wantVid || pid != tt.wantPid {
				t.Errorf("vid, pid = %q, %q, want %q, %q", vid, pid, tt.wantVid, tt.wantPid)
			}
		})
	}
}
