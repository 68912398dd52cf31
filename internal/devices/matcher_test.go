package devices

import "testing"

func outputs(names ...string) []OutputDevice {
	devs := make([]OutputDevice, len(names))
	for i, n := range names {
		devs[i] = OutputDevice{Index: i, Name: n}
	}
	return devs
}

func TestChoosePreferred(t *testing.T) {
	tests := []struct {
		name    string
		devices []OutputDevice
		hints   []string
		want    string
		wantOK  bool
	}{
		{
			name:    "earliest hint wins over list order",
			devices: outputs("Speakers (Realtek)", "CABLE Input (VB-Audio Virtual Cable)"),
			hints:   []string{"CABLE Input", "Realtek"},
			want:    "CABLE Input (VB-Audio Virtual Cable)",
			wantOK:  true,
		},
		{
			name:    "case-insensitive substring",
			devices: outputs("vb-audio cable input"),
			hints:   []string{"CABLE Input"},
			want:    "vb-audio cable input",
			wantOK:  true,
		},
		{
			name:    "no hint matches falls back to first device",
			devices: outputs("Speakers", "Headphones"),
			hints:   []string{"CABLE Input"},
			want:    "Speakers",
			wantOK:  true,
		},
		{
			name:    "empty list returns none",
			devices: nil,
			hints:   []string{"CABLE Input"},
			wantOK:  false,
		},
		{
			name:    "first device matching earliest matching hint",
			devices: outputs("WO Mic Device", "CABLE Input A", "CABLE Input B"),
			hints:   []string{"MICMIC", "CABLE Input"},
			want:    "CABLE Input A",
			wantOK:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PreferredOutput(tt.devices, tt.hints)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Name != tt.want {
				t.Fatalf("picked %q, want %q", got.Name, tt.want)
			}
		})
	}
}

func TestChoosePreferredDeterminism(t *testing.T) {
	devs := outputs("Speakers", "CABLE Input (VB-Audio Virtual Cable)", "Headset")
	hints := []string{"CABLE Input", "VB-Audio"}

	first, _ := PreferredOutput(devs, hints)
	for i := 0; i < 50; i++ {
		got, _ := PreferredOutput(devs, hints)
		if got != first {
			t.Fatalf("iteration %d picked %+v, first pick was %+v", i, got, first)
		}
	}
}

func TestPreferredCaptureSkipsUnmatchedHint(t *testing.T) {
	devs := []CaptureDevice{
		{ID: "a", Name: "Microphone (Realtek Audio)"},
		{ID: "b", Name: "CABLE Output (VB-Audio Virtual Cable)"},
	}

	// First hint matches nothing; second must still be honored over the
	// first-device fallback.
	got, ok := PreferredCapture(devs, []string{"MICMIC", "CABLE Output"})
	if !ok {
		t.Fatal("expected a pick")
	}
	if got.ID != "b" {
		t.Fatalf("picked %+v, want CABLE Output device", got)
	}
}

func TestFindByName(t *testing.T) {
	devs := outputs("Speakers", "CABLE Input")

	if d, ok := FindOutputByName(devs, "CABLE Input"); !ok || d.Index != 1 {
		t.Fatalf("FindOutputByName = %+v, %v", d, ok)
	}
	if _, ok := FindOutputByName(devs, "Missing"); ok {
		t.Fatal("found a device that does not exist")
	}
}
