package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nitronimbus/nitronimbus/internal/api"
	"github.com/nitronimbus/nitronimbus/internal/bus"
	"github.com/nitronimbus/nitronimbus/internal/config"
	"github.com/nitronimbus/nitronimbus/internal/device"
	"github.com/nitronimbus/nitronimbus/internal/discovery"
	"github.com/nitronimbus/nitronimbus/internal/globals"
	"github.com/nitronimbus/nitronimbus/internal/ingest"
	"github.com/nitronimbus/nitronimbus/internal/readings"
	"github.com/nitronimbus/nitronimbus/internal/statistics"
	"github.com/nitronimbus/nitronimbus/internal/version"
)

const SHUTDOWN_TIMEOUT = 5 * time.Second

var serveFlags struct {
	port         string
	baud         int
	listen       string
	pollInterval time.Duration
	autoConnect  bool
	advertise    bool
	dbus         bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest device readings and serve the query API",
	Long: `Start the query service and, once connected, the ingestion loop.

The device link starts closed unless --auto-connect is set; POST
/api/toggle-connection opens and closes it at runtime. Flags override the
values in settings.json for this run only.`,
	Run: runServe,
}

// serveSettings merges the flags the user set over the loaded settings.
func serveSettings(cmd *cobra.Command) config.Settings {
	settings := *globals.Settings
	flags := cmd.Flags()

	if flags.Changed("port") {
		settings.SerialPort = serveFlags.port
	}
	if flags.Changed("baud") {
		settings.BaudRate = serveFlags.baud
	}
	if flags.Changed("listen") {
		settings.ListenAddress = serveFlags.listen
	}
	if flags.Changed("poll-interval") {
		settings.PollInterval = config.Duration(serveFlags.pollInterval)
	}
	if flags.Changed("auto-connect") {
		settings.AutoConnect = serveFlags.autoConnect
	}
	if flags.Changed("advertise") {
		settings.Advertise = serveFlags.advertise
	}
	if flags.Changed("dbus") {
		settings.DBus = serveFlags.dbus
	}

	return settings
}

func runServe(cmd *cobra.Command, args []string) {
	settings := serveSettings(cmd)
	if err := settings.Validate(); err != nil {
		exitWithError("invalid settings: %v", err)
	}

	openStore()
	logger := globals.Logger

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager := device.NewManager(device.SerialOpener, logger)
	store := readings.NewStore(globals.Store)
	aggregator := statistics.NewAggregator(globals.Store)

	pipeline := ingest.NewPipeline(manager, store, aggregator, ingest.Config{
		Address:      settings.SerialPort,
		BaudRate:     settings.BaudRate,
		PollInterval: time.Duration(settings.PollInterval),
	}, ingest.NewMetrics(registry), logger)
	defer pipeline.Close()

	handlers := &api.Handlers{
		Log:        logger,
		Controller: pipeline,
		Readings:   store,
		Statistics: aggregator,
	}
	router := api.NewRouter(handlers, api.RouterOptions{
		AccessLog: os.Stderr,
		Gatherer:  registry,
		Metrics:   api.NewMetrics(registry),
	})

	server := api.NewServer(settings.ListenAddress, settings.MaxConnections, logger, router)
	listener, err := server.Listen()
	if err != nil {
		exitWithError("%v", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	if settings.AutoConnect {
		if err := pipeline.Connect(); err != nil {
			logger.Warn("Auto-connect failed, waiting for toggle", "error", err)
		}
	}

	if settings.DBus {
		service, err := bus.Export(bus.NewMonitor(pipeline, store, aggregator, logger))
		if err != nil {
			logger.Warn("D-Bus export failed, continuing without it", "error", err)
		} else {
			defer service.Close()
			logger.Info("Exported on session bus", "name", bus.DBUS_NAME)
		}
	}

	if settings.Advertise {
		advertisement, err := advertise(listener.Addr())
		if err != nil {
			logger.Warn("mDNS advertisement failed, continuing without it", "error", err)
		} else {
			defer advertisement.Shutdown()
		}
	}

	logger.Info("Serving",
		"listen", listener.Addr().String(),
		"serial_port", settings.SerialPort,
		"baud", settings.BaudRate,
		"database", config.DBPath(),
		"version", version.GetVersion(),
	)

	ctx := cmd.Context()
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("HTTP server did not stop cleanly", "error", err)
	}
}

func advertise(addr net.Addr) (*discovery.Advertisement, error) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("cannot advertise non-TCP address %s", addr)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	instance := "nitronimbus on " + hostname
	advertisement, err := discovery.Advertise(instance, tcpAddr.Port, []string{
		"version=" + version.GetVersion(),
		"path=/api",
	})
	if err != nil {
		return nil, err
	}

	globals.Logger.Info("Advertising over mDNS", "instance", instance, "service", discovery.SERVICE_TYPE, "port", tcpAddr.Port)
	return advertisement, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.StringVar(&serveFlags.port, "port", config.DefaultSerialPort, "Serial port of the measurement device")
	flags.IntVar(&serveFlags.baud, "baud", config.DefaultBaudRate, "Baud rate of the serial link")
	flags.StringVar(&serveFlags.listen, "listen", config.DefaultListenAddress, "Address the query API listens on")
	flags.DurationVar(&serveFlags.pollInterval, "poll-interval", config.DefaultPollInterval, "How long each read waits for a frame")
	flags.BoolVar(&serveFlags.autoConnect, "auto-connect", false, "Open the device link at startup")
	flags.BoolVar(&serveFlags.advertise, "advertise", false, "Advertise the query API over mDNS")
	flags.BoolVar(&serveFlags.dbus, "dbus", false, "Export the query object on the session D-Bus")
}
