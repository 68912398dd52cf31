package devices

// RenameOutcome classifies the best-effort endpoint rename.
type RenameOutcome int

const (
	RenameApplied RenameOutcome = iota
	RenameUnsupported
	RenameDenied
)

func (o RenameOutcome) String() string {
	switch o {
	case RenameApplied:
		return "applied"
	case RenameDenied:
		return "denied"
	default:
		return "unsupported"
	}
}

// DefaultAssigner assigns the chosen capture device as the OS default input
// and optionally persists a friendly alias against its endpoint. Both are
// inherently platform-coupled; non-Windows builds supply a no-op so the
// session controller stays platform-free.
type DefaultAssigner interface {
	// SetDefaultCapture makes the device the default input for all roles
	// (console, multimedia, communications).
	SetDefaultCapture(dev CaptureDevice) error

	// TryRename stores an alias as the endpoint display name. Best-effort:
	// requires elevation, and failure must never abort a session.
	TryRename(dev CaptureDevice, alias string) RenameOutcome
}

// NewDefaultAssigner returns the platform implementation.
func NewDefaultAssigner() DefaultAssigner {
	return newPlatformAssigner()
}
