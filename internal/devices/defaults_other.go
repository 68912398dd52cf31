//go:build !windows

package devices

import "errors"

// noopAssigner satisfies DefaultAssigner where the OS offers no supported
// way to reassign the default input programmatically.
type noopAssigner struct{}

func newPlatformAssigner() DefaultAssigner {
	return noopAssigner{}
}

func (noopAssigner) SetDefaultCapture(dev CaptureDevice) error {
	return errors.New("default-device assignment is not supported on this platform")
}

func (noopAssigner) TryRename(dev CaptureDevice, alias string) RenameOutcome {
	return RenameUnsupported
}
