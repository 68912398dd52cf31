//go:build !windows

package devices

func captureEndpoints() ([]CaptureDevice, error) {
	return portAudioCaptures()
}
