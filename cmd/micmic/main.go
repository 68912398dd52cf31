package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/beastconsumer/MicMic/internal/bridge"
	"github.com/beastconsumer/MicMic/internal/config"
	"github.com/beastconsumer/MicMic/internal/devices"
	"github.com/beastconsumer/MicMic/internal/diag"
	"github.com/beastconsumer/MicMic/internal/logging"
	"github.com/beastconsumer/MicMic/internal/relay"
	"github.com/beastconsumer/MicMic/internal/session"
	"github.com/beastconsumer/MicMic/internal/status"
	"github.com/beastconsumer/MicMic/internal/statusfeed"
	"github.com/beastconsumer/MicMic/internal/workerpool"
)

var (
	version = "0.1.0"
	cfgFile string
	adbPath string
)

var rootCmd = &cobra.Command{
	Use:   "micmic",
	Short: "MicMic desktop agent",
	Long:  `MicMic - turn a phone's microphone into this machine's system microphone`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the agent and begin streaming",
	Run: func(cmd *cobra.Command, args []string) {
		runAgent()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio output and capture devices",
	Run: func(cmd *cobra.Command, args []string) {
		listDevices()
	},
}

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Run the quick diagnostics checks",
	Run: func(cmd *cobra.Command, args []string) {
		runDiagnostics()
	},
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Open the companion app on the phone without streaming",
	Run: func(cmd *cobra.Command, args []string) {
		launchApp()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MicMic v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is micmic.yaml in the system config dir)")
	rootCmd.PersistentFlags().StringVar(&adbPath, "adb", "", "path to the adb executable")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(diagnoseCmd)
	rootCmd.AddCommand(launchCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if adbPath != "" {
		cfg.AdbPath = adbPath
	}
	return cfg
}

func runAgent() {
	cfg := loadConfig()
	logging.Init(cfg.LogFormat, cfg.LogLevel, nil)
	log := logging.L("main")

	bus := status.NewBus()
	logging.ForwardTo(bus)
	monitor := diag.NewMonitor()

	bridgeClient, err := bridge.New(cfg.AdbPath, cfg.PackageID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adb not found: %v\n", err)
		fmt.Fprintln(os.Stderr, "Install platform-tools or point --adb at the executable.")
		os.Exit(1)
	}

	catalog, err := devices.NewPortAudioCatalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Audio subsystem unavailable: %v\n", err)
		os.Exit(1)
	}
	defer catalog.Close()

	pool := workerpool.New(2, 16)

	ctrl := session.NewController(session.Options{
		Config:   cfg,
		Bridge:   bridgeClient,
		Catalog:  catalog,
		Assigner: devices.NewDefaultAssigner(),
		NewRelay: func(out devices.OutputDevice) session.Relay {
			return relay.New(relay.Config{
				Port:        cfg.RelayPort,
				Channels:    cfg.Channels,
				OutputLabel: out.Name,
				OpenSink: func() (relay.Sink, error) {
					return devices.OpenSink(out, cfg.SampleRate, cfg.Channels, cfg.BlockSize)
				},
			}, bus)
		},
		Bus:     bus,
		Monitor: monitor,
		Pool:    pool,
		Persist: config.Save,
	})

	// The feed is opt-in: frontends set status_feed_port to subscribe.
	var feed *statusfeed.Feed
	if cfg.StatusFeedPort > 0 {
		feed = statusfeed.New(bus, monitor)
		if err := feed.Start(cfg.StatusFeedPort); err != nil {
			log.Warn("status feed unavailable", logging.KeyError, err)
			feed = nil
		}
	}

	// Echo status events to stdout so headless runs stay observable.
	events, cancelEvents := bus.Subscribe()
	go func() {
		for ev := range events {
			fmt.Printf("[%s] %s\n", ev.Severity, ev.Message)
		}
	}()

	fmt.Printf("Starting MicMic v%s\n", version)
	if !diag.BridgeServerRunning() {
		log.Info("adb server not running, first command will start it")
	}

	ctrl.RefreshAsync(context.Background())
	ctrl.StartAsync(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool.Shutdown(shutdownCtx)
	for _, w := range ctrl.Stop(shutdownCtx) {
		log.Warn("cleanup incomplete", "step", w.Step, "detail", w.Detail)
	}
	if feed != nil {
		feed.Stop(shutdownCtx)
	}
	cancelEvents()
	bus.Close()
}

func launchApp() {
	cfg := loadConfig()
	logging.Init(cfg.LogFormat, "error", os.Stderr)

	client, err := bridge.New(cfg.AdbPath, cfg.PackageID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adb not found: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := client.ActiveConnection(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "No usable phone: %v\n", err)
		os.Exit(1)
	}
	if err := client.LaunchApp(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to launch the app: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Opened %s on the phone.\n", cfg.PackageID)
}

func listDevices() {
	cfg := loadConfig()
	logging.Init(cfg.LogFormat, "error", os.Stderr)

	catalog, err := devices.NewPortAudioCatalog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Audio subsystem unavailable: %v\n", err)
		os.Exit(1)
	}
	defer catalog.Close()

	outputs, err := catalog.Outputs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list outputs: %v\n", err)
		os.Exit(1)
	}
	captures, err := catalog.Captures()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list captures: %v\n", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OUTPUT DEVICES")
	preferredOut, _ := devices.PreferredOutput(outputs, cfg.OutputHints)
	for _, d := range outputs {
		marker := " "
		if d.Name == preferredOut.Name {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t#%d\t%s\n", marker, d.Index, d.Name)
	}

	fmt.Fprintln(w, "\nCAPTURE DEVICES")
	preferredCap, _ := devices.PreferredCapture(captures, cfg.CaptureHints)
	for _, d := range captures {
		marker := " "
		if d.Name == preferredCap.Name {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", marker, d.ID, d.Name)
	}
	w.Flush()
	fmt.Println("\n* = would be selected for the next session")
}

func runDiagnostics() {
	cfg := loadConfig()
	logging.Init(cfg.LogFormat, "error", os.Stderr)

	monitor := diag.NewMonitor()

	bridgeClient, err := bridge.New(cfg.AdbPath, cfg.PackageID)
	if err != nil {
		monitor.Update(diag.CheckPhone, diag.StatusError, err.Error())
	}

	catalog, catErr := devices.NewPortAudioCatalog()
	if catErr != nil {
		monitor.Update(diag.CheckVirtualMic, diag.StatusError, catErr.Error())
	} else {
		defer catalog.Close()
	}

	if bridgeClient != nil && catalog != nil {
		ctrl := session.NewController(session.Options{
			Config:   cfg,
			Bridge:   bridgeClient,
			Catalog:  catalog,
			Assigner: devices.NewDefaultAssigner(),
			Bus:      status.NewBus(),
			Monitor:  monitor,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ctrl.Refresh(ctx)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, c := range monitor.All() {
		fmt.Fprintf(w, "%s\t[%s]\t%s\n", c.Name, c.Status, c.Message)
	}
	w.Flush()

	if !diag.BridgeServerRunning() {
		fmt.Println("\nNote: no adb server is running; the first bridge command will be slow.")
	}
	fmt.Printf("\nOverall: %s\n", monitor.Overall())
	if check, ok := monitor.Get(diag.CheckVirtualMic); ok && check.Status != diag.StatusOK {
		fmt.Printf("Virtual audio driver guide: %s\n", diag.VirtualDriverGuideURL)
	}
}
