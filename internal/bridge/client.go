package bridge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ConnectionState is the phone's state as reported by the bridge executable.
type ConnectionState string

const (
	StateConnected    ConnectionState = "device"
	StateUnauthorized ConnectionState = "unauthorized"
	StateOffline      ConnectionState = "offline"
)

// RemoteDevice is one phone connection seen through the bridge executable.
// The state is recomputed on every discovery, never cached.
type RemoteDevice struct {
	Serial  string
	State   ConnectionState
	Model   string
	Product string
}

// Client mediates every interaction with the phone and the remote app
// through the external bridge executable.
type Client struct {
	runner    Runner
	packageID string
}

// New resolves the bridge executable and returns a client for it.
// The explicit path (from config) wins over environment and PATH lookup.
func New(explicitPath, packageID string) (*Client, error) {
	exe, err := ResolveExecutable(explicitPath)
	if err != nil {
		return nil, err
	}
	return &Client{runner: &execRunner{executable: exe}, packageID: packageID}, nil
}

// NewWithRunner builds a client over a caller-supplied runner. Used by tests.
func NewWithRunner(r Runner, packageID string) *Client {
	return &Client{runner: r, packageID: packageID}
}

// ResolveExecutable locates the adb binary: explicit path, then ADB_PATH,
// then PATH, then the usual Android SDK install locations.
func ResolveExecutable(explicit string) (string, error) {
	for _, candidate := range []string{explicit, os.Getenv("ADB_PATH")} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if inPath, err := exec.LookPath("adb"); err == nil {
		return inPath, nil
	}

	home, _ := os.UserHomeDir()
	fallbacks := []string{
		filepath.Join(os.Getenv("LOCALAPPDATA"), "Android", "Sdk", "platform-tools", "adb.exe"),
		filepath.Join(home, "AppData", "Local", "Android", "Sdk", "platform-tools", "adb.exe"),
		filepath.Join(home, "Android", "Sdk", "platform-tools", "adb"),
	}
	for _, candidate := range fallbacks {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", ErrExecutableNotFound
}

// ListConnections parses `devices -l` output into structured records.
// Unknown or malformed lines are skipped.
func (c *Client) ListConnections(ctx context.Context) ([]RemoteDevice, error) {
	res, err := c.runner.Run(ctx, DefaultTimeout, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return ParseConnections(res.Stdout), nil
}

// ParseConnections parses the device-listing text: one connection per line
// after the header, `serial state key:value...`. Unknown keys are ignored;
// missing model/product default to "-".
func ParseConnections(stdout string) []RemoteDevice {
	var devices []RemoteDevice

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		// Skip the header and daemon startup chatter.
		if line == "" || strings.HasPrefix(line, "*") || strings.Contains(line, "List of devices") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		dev := RemoteDevice{
			Serial:  parts[0],
			State:   ConnectionState(parts[1]),
			Model:   "-",
			Product: "-",
		}
		for _, part := range parts[2:] {
			key, value, ok := strings.Cut(part, ":")
			if !ok {
				continue
			}
			switch key {
			case "model":
				dev.Model = value
			case "product":
				dev.Product = value
			}
		}
		devices = append(devices, dev)
	}
	return devices
}

// ActiveConnection returns the first connected phone. When none is connected
// it reports the most specific actionable condition among the remaining
// entries: unauthorized beats offline beats absent.
func (c *Client) ActiveConnection(ctx context.Context) (RemoteDevice, error) {
	devices, err := c.ListConnections(ctx)
	if err != nil {
		return RemoteDevice{}, err
	}

	for _, d := range devices {
		if d.State == StateConnected {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.State == StateUnauthorized {
			return RemoteDevice{}, ErrDeviceUnauthorized
		}
	}
	for _, d := range devices {
		if d.State == StateOffline {
			return RemoteDevice{}, ErrDeviceOffline
		}
	}
	return RemoteDevice{}, ErrNoDeviceConnected
}

// IsAppInstalled reports whether the remote application package is present.
func (c *Client) IsAppInstalled(ctx context.Context) (bool, error) {
	res, err := c.runner.Run(ctx, DefaultTimeout, "shell", "pm", "path", c.packageID)
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0 && strings.Contains(res.Stdout, "package:"), nil
}

// InstallApp installs the application artifact onto the phone.
func (c *Client) InstallApp(ctx context.Context, apkPath string) error {
	if _, err := os.Stat(apkPath); err != nil {
		return fmt.Errorf("%w: %s", ErrPackagePathMissing, apkPath)
	}

	res, err := c.runner.Run(ctx, InstallTimeout, "install", "-r", apkPath)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &InstallError{Path: apkPath, Detail: res.Detail()}
	}
	return nil
}

// OpenForwardedPort maps the phone's local port back to this machine so the
// producer can reach the relay listener.
func (c *Client) OpenForwardedPort(ctx context.Context, port int) error {
	spec := fmt.Sprintf("tcp:%d", port)
	res, err := c.runner.Run(ctx, DefaultTimeout, "reverse", spec, spec)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &CommandError{Args: []string{"reverse", spec, spec}, Detail: res.Detail()}
	}
	return nil
}

// CloseForwardedPort tears the mapping down. It runs during cleanup, so
// callers treat a failure as a warning, never as a fatal error.
func (c *Client) CloseForwardedPort(ctx context.Context, port int) error {
	spec := fmt.Sprintf("tcp:%d", port)
	res, err := c.runner.Run(ctx, DefaultTimeout, "reverse", "--remove", spec)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &CommandError{Args: []string{"reverse", "--remove", spec}, Detail: res.Detail()}
	}
	return nil
}

// SendRemoteCommand tells the phone app to begin or cease producing audio.
// command is "start" or "stop".
func (c *Client) SendRemoteCommand(ctx context.Context, command string) error {
	args := []string{
		"shell", "am", "start",
		"-n", c.packageID + "/.MainActivity",
		"--es", "command", command,
	}
	res, err := c.runner.Run(ctx, DefaultTimeout, args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &CommandError{Args: args, Detail: res.Detail()}
	}
	return nil
}

// LaunchApp opens the phone app without sending a command.
func (c *Client) LaunchApp(ctx context.Context) error {
	args := []string{"shell", "am", "start", "-n", c.packageID + "/.MainActivity"}
	res, err := c.runner.Run(ctx, DefaultTimeout, args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &CommandError{Args: args, Detail: res.Detail()}
	}
	return nil
}

// ForceStopApp kills the remote process outright. Final safety net during
// teardown so no producer lingers; callers treat a failure as a warning.
func (c *Client) ForceStopApp(ctx context.Context) error {
	res, err := c.runner.Run(ctx, DefaultTimeout, "shell", "am", "force-stop", c.packageID)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return &CommandError{Args: []string{"force-stop", c.packageID}, Detail: res.Detail()}
	}
	return nil
}

// PackageID returns the remote application package this client manages.
func (c *Client) PackageID() string {
	return c.packageID
}
