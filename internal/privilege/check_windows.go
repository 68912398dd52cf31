//go:build windows

package privilege

import "golang.org/x/sys/windows"

// IsElevated returns true if the process token carries admin elevation.
// Registry writes under HKLM (endpoint renaming) need this.
func IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
