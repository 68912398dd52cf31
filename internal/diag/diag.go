// Package diag maintains the quick-diagnostics snapshot: phone connection,
// remote app presence, virtual microphone availability, and stream state.
package diag

import (
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/beastconsumer/MicMic/internal/logging"
)

var log = logging.L("diag")

// Check names recognized by the monitor.
const (
	CheckPhone      = "phone"
	CheckRemoteApp  = "remote-app"
	CheckVirtualMic = "virtual-mic"
	CheckStream     = "stream"
)

// VirtualDriverGuideURL is surfaced when no virtual capture device exists.
const VirtualDriverGuideURL = "https://vb-audio.com/Cable/"

// Status of a single diagnostic row.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarn    Status = "warn"
	StatusError   Status = "error"
	StatusUnknown Status = "unknown"
)

// Check stores the latest result for a named diagnostic.
type Check struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Monitor tracks diagnostic checks for the agent.
type Monitor struct {
	mu     sync.RWMutex
	checks map[string]Check
}

func NewMonitor() *Monitor {
	return &Monitor{
		checks: make(map[string]Check),
	}
}

// Update records the result for a named check.
func (m *Monitor) Update(name string, status Status, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checks[name] = Check{
		Name:      name,
		Status:    status,
		Message:   message,
		UpdatedAt: time.Now(),
	}

	if status == StatusError {
		log.Warn("diagnostic failing", "check", name, "message", message)
	}
}

// Get returns the check with the given name.
func (m *Monitor) Get(name string) (Check, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[name]
	return c, ok
}

// All returns a snapshot of every recorded check in a fixed display order.
func (m *Monitor) All() []Check {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Check, 0, len(m.checks))
	for _, name := range []string{CheckPhone, CheckRemoteApp, CheckVirtualMic, CheckStream} {
		if c, ok := m.checks[name]; ok {
			result = append(result, c)
		}
	}
	for name, c := range m.checks {
		if !isWellKnown(name) {
			result = append(result, c)
		}
	}
	return result
}

// Overall returns the worst status across all checks; ok when empty.
func (m *Monitor) Overall() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	worst := StatusOK
	for _, c := range m.checks {
		if statusRank(c.Status) > statusRank(worst) {
			worst = c.Status
		}
	}
	return worst
}

func isWellKnown(name string) bool {
	switch name {
	case CheckPhone, CheckRemoteApp, CheckVirtualMic, CheckStream:
		return true
	}
	return false
}

func statusRank(s Status) int {
	switch s {
	case StatusOK:
		return 0
	case StatusUnknown:
		return 1
	case StatusWarn:
		return 2
	default:
		return 3
	}
}

// BridgeServerRunning reports whether an adb server process is alive on
// this machine. Purely informational: the bridge client starts one on
// demand, but a missing server explains a slow first command.
func BridgeServerRunning() bool {
	procs, err := process.Processes()
	if err != nil {
		log.Warn("process scan failed", "error", err)
		return false
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		name = strings.ToLower(name)
		if name == "adb" || name == "adb.exe" {
			return true
		}
	}
	return false
}
