package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for connection discovery. ActiveConnection reports the most
// specific actionable condition: Connected > Unauthorized > Offline > absent.
var (
	ErrNoDeviceConnected  = errors.New("no phone connected over the debug bridge")
	ErrDeviceUnauthorized = errors.New("phone found but unauthorized; accept the RSA key on the phone")
	ErrDeviceOffline      = errors.New("phone is offline on the debug bridge; reconnect the USB cable")
	ErrPackagePathMissing = errors.New("application package not found on disk")
	ErrExecutableNotFound = errors.New("adb executable not found; install Android platform-tools or set ADB_PATH")
)

// CommandError reports a bridge invocation that exceeded its timeout or
// exited nonzero, carrying the captured diagnostic text.
type CommandError struct {
	Args   []string
	Detail string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("bridge command %v failed: %s", e.Args, e.Detail)
}

// InstallError reports a failed remote application install.
type InstallError struct {
	Path   string
	Detail string
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install of %s failed: %s", e.Path, e.Detail)
}
