//go:build windows

package devices

import (
	"fmt"
	"strings"
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"

	"github.com/beastconsumer/MicMic/internal/privilege"
)

var (
	clsidPolicyConfig = ole.NewGUID("{870AF99C-171D-4F9E-AF0D-E63DF40C2BC9}")
	iidIPolicyConfig  = ole.NewGUID("{F8679F50-850A-41CF-9C72-430F290290C8}")
)

// Roles an input device can be the default for.
const (
	eConsole        = 0
	eMultimedia     = 1
	eCommunications = 2
)

type iPolicyConfig struct{ ole.IUnknown }

// Undocumented but stable since Vista; the same layout every volume/device
// switcher relies on.
type iPolicyConfigVtbl struct {
	ole.IUnknownVtbl
	GetMixFormat          uintptr
	GetDeviceFormat       uintptr
	ResetDeviceFormat     uintptr
	SetDeviceFormat       uintptr
	GetProcessingPeriod   uintptr
	SetProcessingPeriod   uintptr
	GetShareMode          uintptr
	SetShareMode          uintptr
	GetPropertyValue      uintptr
	SetPropertyValue      uintptr
	SetDefaultEndpoint    uintptr
	SetEndpointVisibility uintptr
}

type policyAssigner struct{}

func newPlatformAssigner() DefaultAssigner {
	return policyAssigner{}
}

// SetDefaultCapture makes the endpoint the default input for the console,
// multimedia, and communications roles.
func (policyAssigner) SetDefaultCapture(dev CaptureDevice) error {
	done, err := comScope()
	if err != nil {
		return err
	}
	defer done()

	unk, err := ole.CreateInstance(clsidPolicyConfig, iidIPolicyConfig)
	if err != nil {
		return fmt.Errorf("policy config: %w", err)
	}
	pc := (*iPolicyConfig)(unsafe.Pointer(unk))
	defer pc.Release()

	idPtr, err := windows.UTF16PtrFromString(dev.ID)
	if err != nil {
		return fmt.Errorf("endpoint id: %w", err)
	}

	vtbl := (*iPolicyConfigVtbl)(unsafe.Pointer(pc.RawVTable))
	for _, role := range []uint32{eConsole, eMultimedia, eCommunications} {
		hr, _, _ := syscall.SyscallN(vtbl.SetDefaultEndpoint,
			uintptr(unsafe.Pointer(pc)),
			uintptr(unsafe.Pointer(idPtr)),
			uintptr(role),
		)
		if hr != 0 {
			return fmt.Errorf("set default endpoint (role %d): %w", role, ole.NewError(hr))
		}
	}
	return nil
}

// TryRename persists an alias as the endpoint's friendly name in the
// MMDevices registry hive. Requires elevation; failure is reported as an
// outcome, never an error, because downstream apps can still pick the
// device by its original name.
func (policyAssigner) TryRename(dev CaptureDevice, alias string) RenameOutcome {
	guid, ok := endpointGUID(dev.ID)
	if !ok {
		return RenameUnsupported
	}
	if !privilege.IsElevated() {
		log.Warn("endpoint rename skipped: not elevated", "device", dev.Name)
		return RenameDenied
	}

	keyPath := `SOFTWARE\Microsoft\Windows\CurrentVersion\MMDevices\Audio\Capture\` + guid + `\Properties`
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, keyPath, registry.SET_VALUE)
	if err != nil {
		log.Warn("endpoint rename failed", "device", dev.Name, "error", err)
		return RenameDenied
	}
	defer key.Close()

	// PKEY_DeviceInterface_FriendlyName: the name device pickers display.
	if err := key.SetStringValue("{a45c254e-df1c-4efd-8020-67d146a850e0},2", alias); err != nil {
		log.Warn("endpoint rename failed", "device", dev.Name, "error", err)
		return RenameDenied
	}
	return RenameApplied
}

// endpointGUID extracts the endpoint GUID from an MMDevice identifier of
// the form "{0.0.1.00000000}.{guid}".
func endpointGUID(endpointID string) (string, bool) {
	idx := strings.LastIndex(endpointID, ".{")
	if idx < 0 {
		return "", false
	}
	guid := endpointID[idx+1:]
	if !strings.HasPrefix(guid, "{") || !strings.HasSuffix(guid, "}") {
		return "", false
	}
	return guid, true
}
