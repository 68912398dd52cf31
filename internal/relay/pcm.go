package relay

// DecodeSamples reinterprets a chunk of little-endian 16-bit PCM bytes as
// samples. An odd trailing byte is an incomplete sample and is dropped so
// the stream stays sample-aligned.
func DecodeSamples(chunk []byte) []int16 {
	n := len(chunk) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(uint16(chunk[2*i]) | uint16(chunk[2*i+1])<<8)
	}
	return samples
}

// UpmixMono duplicates each mono sample across the given channel count so
// the sink receives correctly framed interleaved samples. channels <= 1
// returns the input unchanged.
func UpmixMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, 0, len(samples)*channels)
	for _, s := range samples {
		for c := 0; c < channels; c++ {
			out = append(out, s)
		}
	}
	return out
}
