package relay

import (
	"reflect"
	"testing"
)

func TestDecodeSamplesDropsOddTrailingByte(t *testing.T) {
	// 5 bytes = 2 complete samples, stray byte dropped.
	chunk := []byte{0x01, 0x00, 0xFF, 0xFF, 0x7F}

	got := DecodeSamples(chunk)
	want := []int16{1, -1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DecodeSamples = %v, want %v", got, want)
	}
}

func TestDecodeSamplesLittleEndian(t *testing.T) {
	chunk := []byte{0x34, 0x12} // 0x1234
	got := DecodeSamples(chunk)
	if len(got) != 1 || got[0] != 0x1234 {
		t.Fatalf("DecodeSamples = %v, want [0x1234]", got)
	}
}

func TestDecodeSamplesEmptyAndSingleByte(t *testing.T) {
	if got := DecodeSamples(nil); len(got) != 0 {
		t.Fatalf("DecodeSamples(nil) = %v", got)
	}
	if got := DecodeSamples([]byte{0x42}); len(got) != 0 {
		t.Fatalf("DecodeSamples(1 byte) = %v, want empty", got)
	}
}

func TestUpmixMonoToStereo(t *testing.T) {
	got := UpmixMono([]int16{10, 20, 30}, 2)
	want := []int16{10, 10, 20, 20, 30, 30}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("UpmixMono = %v, want %v", got, want)
	}
}

func TestUpmixMonoPassthrough(t *testing.T) {
	in := []int16{1, 2, 3}
	if got := UpmixMono(in, 1); !reflect.DeepEqual(got, in) {
		t.Fatalf("UpmixMono(ch=1) = %v, want %v", got, in)
	}
	if got := UpmixMono(in, 0); !reflect.DeepEqual(got, in) {
		t.Fatalf("UpmixMono(ch=0) = %v, want %v", got, in)
	}
}
