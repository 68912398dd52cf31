// Package session sequences device resolution, phone provisioning, relay
// startup, and teardown into one well-defined lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beastconsumer/MicMic/internal/bridge"
	"github.com/beastconsumer/MicMic/internal/config"
	"github.com/beastconsumer/MicMic/internal/devices"
	"github.com/beastconsumer/MicMic/internal/diag"
	"github.com/beastconsumer/MicMic/internal/logging"
	"github.com/beastconsumer/MicMic/internal/status"
	"github.com/beastconsumer/MicMic/internal/workerpool"
)

var log = logging.L("session")

// MicAlias is the friendly name offered for the virtual capture endpoint.
const MicAlias = "MICMIC Virtual Mic"

var (
	ErrNoVirtualOutput  = errors.New("no render device available for the stream output")
	ErrNoVirtualCapture = errors.New("no virtual capture device available; install a virtual audio cable")
)

// State of the controller. Exposed read-only; mutated only inside guarded
// transitions.
type State int32

const (
	Idle State = iota
	Resolving
	Provisioning
	Relaying
	Failed
)

func (s State) String() string {
	switch s {
	case Resolving:
		return "resolving"
	case Provisioning:
		return "provisioning"
	case Relaying:
		return "relaying"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// Warning is a non-fatal cleanup failure, kept visible instead of being
// silently swallowed.
type Warning struct {
	Step   string
	Detail string
}

func (w Warning) String() string {
	return w.Step + ": " + w.Detail
}

// Bridge is the slice of the bridge client the controller needs.
type Bridge interface {
	ActiveConnection(ctx context.Context) (bridge.RemoteDevice, error)
	IsAppInstalled(ctx context.Context) (bool, error)
	InstallApp(ctx context.Context, apkPath string) error
	OpenForwardedPort(ctx context.Context, port int) error
	CloseForwardedPort(ctx context.Context, port int) error
	SendRemoteCommand(ctx context.Context, command string) error
	ForceStopApp(ctx context.Context) error
}

// Relay is the audio relay as the controller sees it.
type Relay interface {
	Start() error
	Stop()
}

// RelayFactory builds a relay bound to the resolved output device. A fresh
// relay is constructed per session.
type RelayFactory func(out devices.OutputDevice) Relay

// Session is a read-only snapshot of the active relay session.
type Session struct {
	State         State
	BoundPort     int
	OutputDevice  devices.OutputDevice
	CaptureDevice devices.CaptureDevice
	StartedAt     time.Time
}

// Controller owns the start/stop lifecycle. At most one operation runs at a
// time; concurrent requests coalesce to no-ops.
type Controller struct {
	cfg      *config.Config
	bridge   Bridge
	catalog  devices.Catalog
	assigner devices.DefaultAssigner
	newRelay RelayFactory
	bus      *status.Bus
	monitor  *diag.Monitor
	pool     *workerpool.Pool
	persist  func(*config.Config) error

	mu      sync.Mutex
	busy    bool
	state   State
	relay   Relay
	session Session
}

// Options carries the controller's collaborators.
type Options struct {
	Config   *config.Config
	Bridge   Bridge
	Catalog  devices.Catalog
	Assigner devices.DefaultAssigner
	NewRelay RelayFactory
	Bus      *status.Bus
	Monitor  *diag.Monitor
	Pool     *workerpool.Pool

	// Persist, when set, saves the config after a successful start so the
	// resolved device pair survives restarts.
	Persist func(*config.Config) error
}

func NewController(opts Options) *Controller {
	return &Controller{
		cfg:      opts.Config,
		bridge:   opts.Bridge,
		catalog:  opts.Catalog,
		assigner: opts.Assigner,
		newRelay: opts.NewRelay,
		bus:      opts.Bus,
		monitor:  opts.Monitor,
		pool:     opts.Pool,
		persist:  opts.Persist,
	}
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns a snapshot of the session.
func (c *Controller) Current() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	s.State = c.state
	return s
}

// beginOp claims the single-operation guard. Returns false when another
// operation is in flight; callers must treat that as a no-op.
func (c *Controller) beginOp() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	return true
}

func (c *Controller) endOp() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Controller) publish(sev status.Severity, message string) {
	if c.bus != nil {
		c.bus.Publish(sev, message)
	}
}

// StartAsync dispatches Start on the worker pool so the caller never
// blocks. A request while an operation is in flight is coalesced away.
func (c *Controller) StartAsync(ctx context.Context) {
	c.pool.Submit(func() {
		if err := c.Start(ctx); err != nil {
			c.publish(status.Error, fmt.Sprintf("failed to start stream: %v", err))
		}
	})
}

// StopAsync dispatches Stop on the worker pool.
func (c *Controller) StopAsync(ctx context.Context) {
	c.pool.Submit(func() {
		c.Stop(ctx)
	})
}

// RefreshAsync dispatches Refresh on the worker pool.
func (c *Controller) RefreshAsync(ctx context.Context) {
	c.pool.Submit(func() {
		c.Refresh(ctx)
	})
}

// Start runs the full startup sequence. On any failure past device
// resolution the full stop sequence runs before the error surfaces, so a
// failed Start never leaves a partially-initialized session behind.
func (c *Controller) Start(ctx context.Context) error {
	if !c.beginOp() {
		log.Info("start ignored: another operation is in flight")
		return nil
	}
	defer c.endOp()

	if c.State() == Relaying {
		log.Info("start ignored: already relaying")
		return nil
	}

	err := c.startLocked(ctx)
	if err != nil {
		c.cleanup(ctx)
		c.setState(Failed)
		c.monitor.Update(diag.CheckStream, diag.StatusError, err.Error())
	}
	return err
}

func (c *Controller) startLocked(ctx context.Context) error {
	c.setState(Resolving)

	out, capture, err := c.resolveDevices()
	if err != nil {
		return err
	}

	c.setState(Provisioning)

	phone, err := c.bridge.ActiveConnection(ctx)
	if err != nil {
		c.monitor.Update(diag.CheckPhone, diag.StatusError, err.Error())
		return err
	}
	c.monitor.Update(diag.CheckPhone, diag.StatusOK, fmt.Sprintf("connected: %s (%s)", phone.Model, phone.Serial))

	installed, err := c.bridge.IsAppInstalled(ctx)
	if err != nil {
		return err
	}
	if !installed {
		c.publish(status.Info, "phone app not installed, installing...")
		if err := c.bridge.InstallApp(ctx, c.cfg.ApkPath); err != nil {
			c.monitor.Update(diag.CheckRemoteApp, diag.StatusError, err.Error())
			return err
		}
		c.publish(status.OK, "phone app installed")
	}
	c.monitor.Update(diag.CheckRemoteApp, diag.StatusOK, "installed on the phone")

	// Best-effort: downstream apps can still pick the device manually.
	if c.cfg.AutoSetDefault {
		if err := c.assigner.SetDefaultCapture(capture); err != nil {
			log.Warn("default capture assignment failed", logging.KeyDevice, capture.Name, logging.KeyError, err)
			c.publish(status.Warn, fmt.Sprintf("could not set default microphone: %v", err))
		} else {
			c.publish(status.OK, fmt.Sprintf("default microphone set: %s", capture.Name))
		}
		if outcome := c.assigner.TryRename(capture, MicAlias); outcome == devices.RenameApplied {
			log.Info("capture endpoint renamed", logging.KeyDevice, capture.Name, "alias", MicAlias)
		}
	}

	relay := c.newRelay(out)
	if err := relay.Start(); err != nil {
		return err
	}

	c.mu.Lock()
	c.relay = relay
	c.session = Session{
		BoundPort:     c.cfg.RelayPort,
		OutputDevice:  out,
		CaptureDevice: capture,
		StartedAt:     time.Now(),
	}
	c.mu.Unlock()

	// Relay before producer: the remote start command must find a consumer
	// listening, or the first audio chunks are refused.
	if err := c.bridge.OpenForwardedPort(ctx, c.cfg.RelayPort); err != nil {
		return err
	}
	if err := c.bridge.SendRemoteCommand(ctx, "start"); err != nil {
		return err
	}

	c.setState(Relaying)
	c.monitor.Update(diag.CheckStream, diag.StatusOK, fmt.Sprintf("relaying to %s", out.Name))
	c.publish(status.OK, fmt.Sprintf("stream started with %s", phone.Model))

	// Remember the resolved pair so the next session skips hint matching.
	if c.persist != nil {
		c.cfg.OutputLabel = out.Name
		c.cfg.CaptureLabel = capture.Name
		if err := c.persist(c.cfg); err != nil {
			log.Warn("could not persist device selection", logging.KeyError, err)
		}
	}
	return nil
}

// resolveDevices re-fetches both catalogs and picks the session's device
// pair. A remembered selection wins while the device is still present;
// otherwise the hint lists decide, then the first device.
func (c *Controller) resolveDevices() (devices.OutputDevice, devices.CaptureDevice, error) {
	outputs, err := c.catalog.Outputs()
	if err != nil {
		return devices.OutputDevice{}, devices.CaptureDevice{}, err
	}
	captures, err := c.catalog.Captures()
	if err != nil {
		return devices.OutputDevice{}, devices.CaptureDevice{}, err
	}

	out, ok := devices.FindOutputByName(outputs, c.cfg.OutputLabel)
	if !ok {
		out, ok = devices.PreferredOutput(outputs, c.cfg.OutputHints)
	}
	if !ok {
		return devices.OutputDevice{}, devices.CaptureDevice{}, ErrNoVirtualOutput
	}

	capture, ok := devices.FindCaptureByName(captures, c.cfg.CaptureLabel)
	if !ok {
		capture, ok = devices.PreferredCapture(captures, c.cfg.CaptureHints)
	}
	if !ok {
		c.monitor.Update(diag.CheckVirtualMic, diag.StatusWarn,
			"no virtual capture device; see "+diag.VirtualDriverGuideURL)
		return devices.OutputDevice{}, devices.CaptureDevice{}, ErrNoVirtualCapture
	}
	c.monitor.Update(diag.CheckVirtualMic, diag.StatusOK, capture.Name)

	log.Info("devices resolved", "output", out.Name, "capture", capture.Name)
	return out, capture, nil
}

// Stop runs the full teardown. Best-effort sub-steps surface as warnings;
// only the relay's resource release is a hard requirement. Always succeeds
// from the caller's perspective.
func (c *Controller) Stop(ctx context.Context) []Warning {
	if !c.beginOp() {
		log.Info("stop ignored: another operation is in flight")
		return nil
	}
	defer c.endOp()

	warnings := c.cleanup(ctx)
	c.setState(Idle)
	c.monitor.Update(diag.CheckStream, diag.StatusUnknown, "stopped")
	c.publish(status.Info, "stream stopped")

	for _, w := range warnings {
		log.Warn("cleanup step failed", "step", w.Step, "detail", w.Detail)
		c.publish(status.Warn, w.String())
	}
	return warnings
}

// cleanup is the shared teardown path: remote stop, forward removal, force
// stop, relay stop. The forwarded port is released whenever the session
// leaves Relaying, success or failure.
func (c *Controller) cleanup(ctx context.Context) []Warning {
	var warnings []Warning

	if err := c.bridge.SendRemoteCommand(ctx, "stop"); err != nil {
		warnings = append(warnings, Warning{Step: "remote stop", Detail: err.Error()})
	}
	if err := c.bridge.CloseForwardedPort(ctx, c.cfg.RelayPort); err != nil {
		warnings = append(warnings, Warning{Step: "remove port forward", Detail: err.Error()})
	}
	if err := c.bridge.ForceStopApp(ctx); err != nil {
		warnings = append(warnings, Warning{Step: "force-stop phone app", Detail: err.Error()})
	}

	c.mu.Lock()
	relay := c.relay
	c.relay = nil
	c.session = Session{}
	c.mu.Unlock()

	if relay != nil {
		relay.Stop()
	}
	return warnings
}

// Refresh recomputes the diagnostics snapshot without touching a running
// session.
func (c *Controller) Refresh(ctx context.Context) {
	if !c.beginOp() {
		log.Info("refresh ignored: another operation is in flight")
		return
	}
	defer c.endOp()

	outputs, err := c.catalog.Outputs()
	if err != nil {
		c.monitor.Update(diag.CheckVirtualMic, diag.StatusError, err.Error())
	} else if len(outputs) == 0 {
		c.monitor.Update(diag.CheckVirtualMic, diag.StatusWarn, "no render devices present")
	}

	captures, err := c.catalog.Captures()
	switch {
	case err != nil:
		c.monitor.Update(diag.CheckVirtualMic, diag.StatusError, err.Error())
	default:
		if capture, ok := devices.FindCaptureByName(captures, c.cfg.CaptureLabel); ok {
			c.monitor.Update(diag.CheckVirtualMic, diag.StatusOK, capture.Name)
		} else if capture, ok := devices.PreferredCapture(captures, c.cfg.CaptureHints); ok {
			c.monitor.Update(diag.CheckVirtualMic, diag.StatusOK, capture.Name)
		} else {
			c.monitor.Update(diag.CheckVirtualMic, diag.StatusWarn,
				"no virtual capture device; see "+diag.VirtualDriverGuideURL)
		}
	}

	phone, err := c.bridge.ActiveConnection(ctx)
	if err != nil {
		c.monitor.Update(diag.CheckPhone, diag.StatusError, err.Error())
		c.monitor.Update(diag.CheckRemoteApp, diag.StatusUnknown, "waiting for phone")
		return
	}
	c.monitor.Update(diag.CheckPhone, diag.StatusOK, fmt.Sprintf("connected: %s (%s)", phone.Model, phone.Serial))

	installed, err := c.bridge.IsAppInstalled(ctx)
	switch {
	case err != nil:
		c.monitor.Update(diag.CheckRemoteApp, diag.StatusError, err.Error())
	case installed:
		c.monitor.Update(diag.CheckRemoteApp, diag.StatusOK, "installed on the phone")
	default:
		c.monitor.Update(diag.CheckRemoteApp, diag.StatusWarn, "not installed")
	}
}
