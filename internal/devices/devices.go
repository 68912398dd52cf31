// Package devices enumerates the OS audio endpoints the relay cares about:
// render devices it can write PCM into, and capture devices the rest of the
// desktop reads from (the virtual microphone loop).
package devices

import "github.com/beastconsumer/MicMic/internal/logging"

var log = logging.L("devices")

// OutputDevice identifies a render endpoint capable of playback. The index
// is only stable for the lifetime of one discovery cycle.
type OutputDevice struct {
	Index int
	Name  string
}

// CaptureDevice identifies a recording endpoint. On Windows the ID is the
// MMDevice endpoint identifier, stable enough for default-assignment and
// renaming; elsewhere it is the device name.
type CaptureDevice struct {
	ID   string
	Name string
}

// Catalog queries the OS audio subsystem. Lists are re-fetched on every
// call; no identity is guaranteed across reboots beyond what the OS assigns.
type Catalog interface {
	Outputs() ([]OutputDevice, error)
	Captures() ([]CaptureDevice, error)
}
