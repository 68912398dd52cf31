package devices

import "strings"

// ChoosePreferred selects one device from a catalog list given ordered name
// hints. Hints are tried in priority order; for each hint the list is
// scanned in original order and the first display name containing the hint
// (case-insensitive) wins. When no hint matches, the first device is the
// fallback. Returns false only for an empty list.
func ChoosePreferred[D any](items []D, name func(D) string, hints []string) (D, bool) {
	for _, hint := range hints {
		hint = strings.ToLower(hint)
		for _, item := range items {
			if strings.Contains(strings.ToLower(name(item)), hint) {
				return item, true
			}
		}
	}

	if len(items) > 0 {
		return items[0], true
	}
	var zero D
	return zero, false
}

// PreferredOutput applies the hint list to a render-device catalog.
func PreferredOutput(items []OutputDevice, hints []string) (OutputDevice, bool) {
	return ChoosePreferred(items, func(d OutputDevice) string { return d.Name }, hints)
}

// PreferredCapture applies the hint list to a capture-device catalog.
func PreferredCapture(items []CaptureDevice, hints []string) (CaptureDevice, bool) {
	return ChoosePreferred(items, func(d CaptureDevice) string { return d.Name }, hints)
}

// FindOutputByName returns the output device with the exact display name, if
// present. Used to honor a remembered selection before falling back to hints.
func FindOutputByName(items []OutputDevice, name string) (OutputDevice, bool) {
	for _, d := range items {
		if d.Name == name {
			return d, true
		}
	}
	return OutputDevice{}, false
}

// FindCaptureByName returns the capture device with the exact display name.
func FindCaptureByName(items []CaptureDevice, name string) (CaptureDevice, bool) {
	for _, d := range items {
		if d.Name == name {
			return d, true
		}
	}
	return CaptureDevice{}, false
}
