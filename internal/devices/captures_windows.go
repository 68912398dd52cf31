//go:build windows

package devices

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/go-ole/go-ole"
	"golang.org/x/sys/windows"
)

var (
	clsidMMDeviceEnumerator = ole.NewGUID("{BCDE0395-E52F-467C-8E3D-C4579291692E}")
	iidIMMDeviceEnumerator  = ole.NewGUID("{A95664D2-9614-4F35-A746-DE8DB63617E6}")
)

const (
	eCapture          = 1
	deviceStateActive = 0x1
	stgmRead          = 0
)

type propertyKey struct {
	fmtid ole.GUID
	pid   uint32
}

// PKEY_Device_FriendlyName
var pkeyDeviceFriendlyName = propertyKey{
	fmtid: *ole.NewGUID("{A45C254E-DF1C-4EFD-8020-67D146A850E0}"),
	pid:   14,
}

type propVariant struct {
	vt       uint16
	reserved [6]byte
	val      uintptr
	_        uintptr
}

const vtLpwstr = 31

type immDeviceEnumerator struct{ ole.IUnknown }

type immDeviceEnumeratorVtbl struct {
	ole.IUnknownVtbl
	EnumAudioEndpoints                     uintptr
	GetDefaultAudioEndpoint                uintptr
	GetDevice                              uintptr
	RegisterEndpointNotificationCallback   uintptr
	UnregisterEndpointNotificationCallback uintptr
}

type immDeviceCollection struct{ ole.IUnknown }

type immDeviceCollectionVtbl struct {
	ole.IUnknownVtbl
	GetCount uintptr
	Item     uintptr
}

type immDevice struct{ ole.IUnknown }

type immDeviceVtbl struct {
	ole.IUnknownVtbl
	Activate          uintptr
	OpenPropertyStore uintptr
	GetId             uintptr
	GetState          uintptr
}

type iPropertyStore struct{ ole.IUnknown }

type iPropertyStoreVtbl struct {
	ole.IUnknownVtbl
	GetCount uintptr
	GetAt    uintptr
	GetValue uintptr
	SetValue uintptr
	Commit   uintptr
}

// comScope initializes COM for the calling goroutine and returns the
// matching uninitialize. S_FALSE (already initialized) is not an error.
func comScope() (func(), error) {
	if err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED); err != nil {
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 1 {
			return nil, fmt.Errorf("COM init: %w", err)
		}
	}
	return ole.CoUninitialize, nil
}

// captureEndpoints enumerates active MMDevice capture endpoints, keeping the
// stable endpoint identifier needed for default-assignment and renaming.
func captureEndpoints() ([]CaptureDevice, error) {
	done, err := comScope()
	if err != nil {
		return nil, err
	}
	defer done()

	unk, err := ole.CreateInstance(clsidMMDeviceEnumerator, iidIMMDeviceEnumerator)
	if err != nil {
		return nil, fmt.Errorf("device enumerator: %w", err)
	}
	enum := (*immDeviceEnumerator)(unsafe.Pointer(unk))
	defer enum.Release()

	vtbl := (*immDeviceEnumeratorVtbl)(unsafe.Pointer(enum.RawVTable))

	var collection *immDeviceCollection
	hr, _, _ := syscall.SyscallN(vtbl.EnumAudioEndpoints,
		uintptr(unsafe.Pointer(enum)),
		uintptr(eCapture),
		uintptr(deviceStateActive),
		uintptr(unsafe.Pointer(&collection)),
	)
	if hr != 0 {
		return nil, fmt.Errorf("endpoint enumeration: %w", ole.NewError(hr))
	}
	defer collection.Release()

	colVtbl := (*immDeviceCollectionVtbl)(unsafe.Pointer(collection.RawVTable))

	var count uint32
	hr, _, _ = syscall.SyscallN(colVtbl.GetCount,
		uintptr(unsafe.Pointer(collection)),
		uintptr(unsafe.Pointer(&count)),
	)
	if hr != 0 {
		return nil, fmt.Errorf("endpoint count: %w", ole.NewError(hr))
	}

	var captures []CaptureDevice
	for i := uint32(0); i < count; i++ {
		var dev *immDevice
		hr, _, _ = syscall.SyscallN(colVtbl.Item,
			uintptr(unsafe.Pointer(collection)),
			uintptr(i),
			uintptr(unsafe.Pointer(&dev)),
		)
		if hr != 0 {
			continue
		}

		capture, err := describeEndpoint(dev)
		dev.Release()
		if err != nil {
			log.Debug("skipping unreadable endpoint", "index", i, "error", err)
			continue
		}
		if capture.Name == "" {
			continue
		}
		captures = append(captures, capture)
	}
	return captures, nil
}

func describeEndpoint(dev *immDevice) (CaptureDevice, error) {
	devVtbl := (*immDeviceVtbl)(unsafe.Pointer(dev.RawVTable))

	var idPtr *uint16
	hr, _, _ := syscall.SyscallN(devVtbl.GetId,
		uintptr(unsafe.Pointer(dev)),
		uintptr(unsafe.Pointer(&idPtr)),
	)
	if hr != 0 {
		return CaptureDevice{}, ole.NewError(hr)
	}
	id := windows.UTF16PtrToString(idPtr)
	ole.CoTaskMemFree(uintptr(unsafe.Pointer(idPtr)))

	var store *iPropertyStore
	hr, _, _ = syscall.SyscallN(devVtbl.OpenPropertyStore,
		uintptr(unsafe.Pointer(dev)),
		uintptr(stgmRead),
		uintptr(unsafe.Pointer(&store)),
	)
	if hr != 0 {
		return CaptureDevice{}, ole.NewError(hr)
	}
	defer store.Release()

	storeVtbl := (*iPropertyStoreVtbl)(unsafe.Pointer(store.RawVTable))

	var pv propVariant
	hr, _, _ = syscall.SyscallN(storeVtbl.GetValue,
		uintptr(unsafe.Pointer(store)),
		uintptr(unsafe.Pointer(&pkeyDeviceFriendlyName)),
		uintptr(unsafe.Pointer(&pv)),
	)
	if hr != 0 {
		return CaptureDevice{}, ole.NewError(hr)
	}

	var name string
	if pv.vt == vtLpwstr && pv.val != 0 {
		name = windows.UTF16PtrToString((*uint16)(unsafe.Pointer(pv.val)))
		ole.CoTaskMemFree(pv.val)
	}

	return CaptureDevice{ID: id, Name: name}, nil
}
