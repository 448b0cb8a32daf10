// Package main provides the entry point for the Ocypus LCD temperature display daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/shini4i/ocypus-lcd/internal/hid"
	"github.com/shini4i/ocypus-lcd/internal/loop"
	"github.com/shini4i/ocypus-lcd/internal/power"
	"github.com/shini4i/ocypus-lcd/internal/report"
	"github.com/shini4i/ocypus-lcd/internal/sensor"
	"github.com/shini4i/ocypus-lcd/internal/service"
	"github.com/shini4i/ocypus-lcd/internal/udev"
)

const (
	defaultSensor      = "k10temp"
	defaultRate        = 1.0
	defaultServiceName = "ocypus-lcd"

	// keepAliveWindow is how long the firmware waits for the next frame
	// before falling back to its idle animation.
	keepAliveWindow = 2 * time.Second

	// arrivalSettleDelay gives a freshly plugged cooler time to finish
	// enumerating its interfaces before they are opened.
	arrivalSettleDelay = 500 * time.Millisecond

	// fallbackPollInterval bounds how long a lost udev event can delay
	// device pickup while waiting.
	fallbackPollInterval = 5 * time.Second
)

var (
	verbose         bool
	unitFlag        string
	sensorFlag      string
	rateFlag        float64
	waitFlag        bool
	serviceNameFlag string

	rootCmd = &cobra.Command{
		Use:   "ocypus-lcd",
		Short: "Temperature display driver for Ocypus Iota LCD coolers",
		Long: `ocypus-lcd drives the LCD panel of Ocypus Iota A40/A62 coolers,
streaming a hwmon temperature to the display over USB HID.

Examples:
  ocypus-lcd list                    # List all Ocypus devices
  ocypus-lcd on                      # Start temperature display (Celsius)
  ocypus-lcd on -u f                 # Start temperature display (Fahrenheit)
  ocypus-lcd on -s "coretemp" -u c   # Use a specific sensor
  ocypus-lcd off                     # Turn off the display
  ocypus-lcd install-service         # Install the systemd service`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all found Ocypus cooler devices",
		Run: func(cmd *cobra.Command, args []string) {
			runList()
		},
	}

	onCmd = &cobra.Command{
		Use:   "on",
		Short: "Turn on the display and stream the temperature",
		Run: func(cmd *cobra.Command, args []string) {
			runOn()
		},
	}

	offCmd = &cobra.Command{
		Use:   "off",
		Short: "Turn off (blank) the display",
		Run: func(cmd *cobra.Command, args []string) {
			runOff()
		},
	}

	installCmd = &cobra.Command{
		Use:   "install-service",
		Short: "Install a systemd unit for background operation",
		Run: func(cmd *cobra.Command, args []string) {
			runInstall()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	onCmd.Flags().StringVarP(&unitFlag, "unit", "u", "c", "Temperature unit: c=Celsius, f=Fahrenheit")
	onCmd.Flags().StringVarP(&sensorFlag, "sensor", "s", defaultSensor, "Substring of the hwmon chip to read")
	onCmd.Flags().Float64VarP(&rateFlag, "rate", "r", defaultRate, "Update interval in seconds")
	onCmd.Flags().BoolVar(&waitFlag, "wait", false, "Wait for the cooler to appear instead of failing")

	installCmd.Flags().StringVarP(&unitFlag, "unit", "u", "c", "Temperature unit for the service")
	installCmd.Flags().StringVarP(&sensorFlag, "sensor", "s", defaultSensor, "Sensor substring for the service")
	installCmd.Flags().Float64VarP(&rateFlag, "rate", "r", defaultRate, "Update interval for the service in seconds")
	installCmd.Flags().StringVar(&serviceNameFlag, "name", defaultServiceName, "Name of the systemd unit")

	rootCmd.AddCommand(listCmd, onCmd, offCmd, installCmd)
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func runOn() {
	unit, err := report.ParseUnit(unitFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid temperature unit")
	}

	interval, err := updateInterval(rateFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid update rate")
	}
	if interval > keepAliveWindow {
		log.Warn().Dur("interval", interval).Msg("Update interval exceeds the panel keep-alive window, the idle animation may cut in between updates")
	}

	log.Info().Msg("Starting ocypus-lcd")

	reader := sensor.NewReader(sensorFlag)
	reading, err := reader.Read()
	if err != nil {
		reportAvailableSensors(reader)
		log.Fatal().Err(err).Str("sensor", sensorFlag).Msg("Temperature sensor not found")
	}
	log.Info().
		Str("chip", reading.Chip).
		Str("label", reading.Label).
		Float64("celsius", reading.Celsius).
		Msg("Using temperature sensor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer log.Info().Msg("Daemon stopped")

	controller := hid.NewController(hid.NewLocator())
	defer func() {
		if err := controller.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close controller")
		}
	}()

	// A buffered token channel wakes the acquire retry early when udev
	// sees the cooler appear.
	arrivals := make(chan struct{}, 1)
	monitor := udev.NewMonitor(func(event udev.Event) {
		if event.Type == udev.EventAdd {
			nudge(arrivals)
		}
	})
	monitor.SetRecoveryHandler(func() {
		nudge(arrivals)
	})
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
	} else {
		defer func() {
			if err := monitor.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop udev monitor")
			}
		}()
	}

	updates, err := loop.New(controller, reader, loop.Config{Unit: unit, Interval: interval})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure update loop")
	}

	if err := acquireCooler(ctx, controller, arrivals, waitFlag); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Fatal().Err(err).Msg("Failed to acquire cooler")
	}

	// The sleep handler stops the current loop run (which blanks the
	// panel) and releases the device before the kernel freezes USB; the
	// main loop below restarts everything after resume.
	resume := make(chan struct{}, 1)

	var runMu sync.Mutex
	var cancelRun context.CancelFunc
	var runStopped chan struct{}

	sleep := power.NewMonitor(func(sleeping bool) {
		if sleeping {
			runMu.Lock()
			cancel := cancelRun
			stopped := runStopped
			runMu.Unlock()

			if cancel != nil {
				cancel()
				<-stopped // the final blank has gone out
			}
			controller.Release()
			// logind orders PrepareForSleep(true) before its matching
			// (false), so any token still queued here is stale: it came
			// from a resume whose re-acquire the main loop never finished.
			drain(resume)
			return
		}
		nudge(resume)
	})
	if err := sleep.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start sleep monitor (suspend handling disabled)")
	} else {
		defer func() {
			if err := sleep.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop sleep monitor")
			}
		}()
	}

	log.Info().Msg("Daemon running, press Ctrl+C to stop")

	for {
		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		stopped := make(chan struct{})

		runMu.Lock()
		cancelRun = cancel
		runStopped = stopped
		runMu.Unlock()

		go func() {
			done <- updates.Run(runCtx)
			close(stopped)
		}()

		err := <-done
		cancel()
		if err != nil {
			// The loop has already blanked the panel on its way out;
			// log.Fatal skips defers, so drop the session here.
			controller.Release()
			log.Fatal().Err(err).Msg("Display update loop failed")
		}
		if ctx.Err() != nil {
			log.Info().Msg("Shutting down...")
			return
		}

		// The loop was stopped by the sleep handler; wait out the suspend.
		log.Info().Msg("Display paused for system sleep")
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down...")
			return
		case <-resume:
		}

		if err := acquireCooler(ctx, controller, arrivals, true); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatal().Err(err).Msg("Failed to re-acquire cooler after resume")
		}
		log.Info().Msg("Display resumed")
	}
}

// acquireCooler binds the controller to a working interface. With wait set
// it keeps trying as the device enumerates, paced by a rate limiter and
// woken early by udev arrivals; without it the first failure is returned.
// Permission failures are never retried.
func acquireCooler(ctx context.Context, controller *hid.Controller, arrivals <-chan struct{}, wait bool) error {
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		err := controller.Acquire()
		if err == nil {
			return nil
		}
		if errors.Is(err, hid.ErrPermission) {
			return fmt.Errorf("insufficient permissions to open the cooler, run as root: %w", err)
		}
		if !wait {
			return err
		}

		if errors.Is(err, hid.ErrNoDevice) {
			log.Info().Msg("No Ocypus cooler detected, waiting for it to appear")
		} else {
			log.Warn().Err(err).Msg("Cooler not usable yet, retrying")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-arrivals:
			time.Sleep(arrivalSettleDelay)
		case <-time.After(fallbackPollInterval):
		}
	}
}

func runList() {
	locator := hid.NewLocator()
	candidates, err := locator.ListCandidates()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to enumerate devices")
	}
	if len(candidates) == 0 {
		fmt.Println("No Ocypus cooler devices found.")
		return
	}

	fmt.Printf("Found %d Ocypus device interface(s):\n", len(candidates))
	for _, info := range candidates {
		fmt.Println(formatCandidate(info))
	}
}

func runOff() {
	controller := hid.NewController(hid.NewLocator())
	defer func() {
		if err := controller.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close controller")
		}
	}()

	if err := controller.Acquire(); err != nil {
		log.Fatal().Err(err).Msg("Failed to acquire cooler")
	}
	if err := controller.Blank(); err != nil {
		log.Fatal().Err(err).Msg("Failed to blank display")
	}

	fmt.Println("Display turned off.")
}

func runInstall() {
	unit, err := report.ParseUnit(unitFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid temperature unit")
	}
	if _, err := updateInterval(rateFlag); err != nil {
		log.Fatal().Err(err).Msg("Invalid update rate")
	}

	installer := service.NewInstaller()
	path, err := installer.Install(service.Config{
		Name:   serviceNameFlag,
		Unit:   unit,
		Sensor: sensorFlag,
		Rate:   rateFlag,
	})
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			log.Fatal().Err(err).Msg("Permission denied, run with sudo to install the service")
		}
		log.Fatal().Err(err).Msg("Failed to create service file")
	}

	unitName := filepath.Base(path)
	fmt.Printf("Systemd service created: %s\n", path)
	fmt.Println()
	fmt.Println("To enable and start the service:")
	fmt.Println("  sudo systemctl daemon-reload")
	fmt.Printf("  sudo systemctl enable --now %s\n", unitName)
	fmt.Println()
	fmt.Println("To check service status:")
	fmt.Printf("  systemctl status %s\n", unitName)
}

// updateInterval converts the rate flag (seconds) into a duration.
func updateInterval(rateSeconds float64) (time.Duration, error) {
	if rateSeconds <= 0 {
		return 0, fmt.Errorf("update rate must be positive, got %g", rateSeconds)
	}
	return time.Duration(rateSeconds * float64(time.Second)), nil
}

// nudge delivers a non-blocking wake-up token.
func nudge(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// drain discards a queued wake-up token, if any.
func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}

// formatCandidate renders one enumeration line for the list command.
func formatCandidate(info hid.DeviceInfo) string {
	product := info.Product
	if product == "" {
		product = "(unnamed)"
	}
	return fmt.Sprintf("  interface %d: %s  usage_page=0x%04x  path=%s", info.Interface, product, info.UsagePage, info.Path)
}

func reportAvailableSensors(reader *sensor.Reader) {
	readings, err := reader.List()
	if err != nil || len(readings) == 0 {
		fmt.Fprintln(os.Stderr, "No hwmon temperature sensors available.")
		return
	}

	fmt.Fprintln(os.Stderr, "Available sensors:")
	fmt.Fprint(os.Stderr, sensorReport(readings))
}

// sensorReport formats one line per chip for the startup failure message.
func sensorReport(readings []sensor.Reading) string {
	var b strings.Builder
	for _, r := range readings {
		fmt.Fprintf(&b, "  %-12s %s: %.1f°C\n", r.Chip, r.Label, r.Celsius)
	}
	return b.String()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
