package devices

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PCMSink is a raw interleaved 16-bit output stream on one render device.
// Samples are buffered into fixed-size blocks before each device write, so
// callers may push chunks of any length.
type PCMSink struct {
	stream   *portaudio.Stream
	buf      []int16 // block handed to the device, len = blockSize*channels
	pending  []int16
	channels int
	mu       sync.Mutex
	closed   bool
}

// OpenSink opens the render device as a raw PCM sink at the given sample
// rate, channel count, and block size (frames per device write).
func OpenSink(dev OutputDevice, sampleRate, channels, blockSize int) (*PCMSink, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device discovery: %w", err)
	}
	if dev.Index < 0 || dev.Index >= len(infos) {
		return nil, fmt.Errorf("output device #%d no longer present", dev.Index)
	}
	info := infos[dev.Index]

	sink := &PCMSink{
		buf:      make([]int16, blockSize*channels),
		channels: channels,
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: channels,
			Latency:  info.DefaultLowOutputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: blockSize,
	}, &sink.buf)
	if err != nil {
		return nil, fmt.Errorf("open output stream on %q: %w", info.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("start output stream on %q: %w", info.Name, err)
	}

	sink.stream = stream
	return sink, nil
}

// WriteSamples queues interleaved samples and flushes every complete block
// to the device.
func (s *PCMSink) WriteSamples(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sink is closed")
	}

	s.pending = append(s.pending, samples...)
	for len(s.pending) >= len(s.buf) {
		copy(s.buf, s.pending[:len(s.buf)])
		s.pending = s.pending[len(s.buf):]
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("device write: %w", err)
		}
	}
	return nil
}

// Close pads and flushes any partial block, then stops and releases the
// stream. Safe to call more than once.
func (s *PCMSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if len(s.pending) > 0 {
		n := copy(s.buf, s.pending)
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		s.pending = nil
		// Best-effort: the trailing partial block is not worth failing over.
		_ = s.stream.Write()
	}

	if err := s.stream.Stop(); err != nil {
		s.stream.Close()
		return err
	}
	return s.stream.Close()
}
