package devices

import (
	"fmt"
	"sort"

	"github.com/gordonklaus/portaudio"
)

// PortAudioCatalog enumerates render devices through PortAudio and capture
// devices through the platform endpoint API.
type PortAudioCatalog struct{}

// NewPortAudioCatalog initializes the PortAudio runtime. Callers own the
// returned catalog and must Close it.
func NewPortAudioCatalog() (*PortAudioCatalog, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audio subsystem init: %w", err)
	}
	return &PortAudioCatalog{}, nil
}

func (c *PortAudioCatalog) Close() error {
	return portaudio.Terminate()
}

// Outputs returns every render endpoint, keyed by its PortAudio device
// index so a sink can be opened on the same handle later.
func (c *PortAudioCatalog) Outputs() ([]OutputDevice, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device discovery: %w", err)
	}

	var outputs []OutputDevice
	for i, info := range infos {
		if info.MaxOutputChannels <= 0 {
			continue
		}
		outputs = append(outputs, OutputDevice{Index: i, Name: info.Name})
	}
	return outputs, nil
}

// Captures returns every active recording endpoint, sorted by display name.
func (c *PortAudioCatalog) Captures() ([]CaptureDevice, error) {
	captures, err := captureEndpoints()
	if err != nil {
		return nil, err
	}
	sort.Slice(captures, func(i, j int) bool {
		return captures[i].Name < captures[j].Name
	})
	return captures, nil
}

// portAudioCaptures lists input-capable PortAudio devices. The fallback for
// platforms without a native endpoint API; the name doubles as the ID.
func portAudioCaptures() ([]CaptureDevice, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device discovery: %w", err)
	}

	var captures []CaptureDevice
	for _, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		captures = append(captures, CaptureDevice{ID: info.Name, Name: info.Name})
	}
	return captures, nil
}
