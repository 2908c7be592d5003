package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/core-tools/hsu-sidecar-go/pkg/logging"
	"github.com/core-tools/hsu-sidecar-go/pkg/process"
	"github.com/core-tools/hsu-sidecar-go/pkg/sidecar"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config   string `long:"config" description:"path to the supervisor configuration file"`
	LogLevel string `long:"log-level" description:"log level override (debug, info, warn, error)"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	if opts.Config == "" {
		fmt.Println("Config file is required")
		os.Exit(1)
	}

	config, err := sidecar.LoadConfigFromFile(opts.Config)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if opts.LogLevel != "" {
		config.Sidecar.LogLevel = opts.LogLevel
	}
	if err := sidecar.ValidateConfig(config); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logFuncs := logging.NewZapLogFuncs(config.Sidecar.LogLevel)
	supervisorLogger := logging.NewLogger(logPrefix("sidecar"), logFuncs)
	processLogger := logging.NewLogger(logPrefix("process"), logFuncs)

	supervisorLogger.Infof("Starting, id: %s", config.Sidecar.ID)

	spawnCmd := process.NewStdSpawnCmd(config.Spawn, config.Sidecar.ID, processLogger)

	supervisor, err := sidecar.NewSupervisor(sidecar.Options{
		ID:    config.Sidecar.ID,
		Spawn: spawnCmd,
	}, supervisorLogger)
	if err != nil {
		supervisorLogger.Errorf("Failed to create supervisor: %v", err)
		os.Exit(1)
	}

	// Spawn failure is fatal to startup: the host has no functioning
	// backend without the sidecar
	if err := supervisor.Start(context.Background()); err != nil {
		supervisorLogger.Errorf("Failed to start sidecar: %v", err)
		os.Exit(1)
	}

	// Host lifecycle events: SIGINT/SIGTERM is the graceful exit request;
	// final exit follows right after in this headless host
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case receivedSignal := <-sig:
		supervisorLogger.Infof("Received signal: %v", receivedSignal)
		supervisor.HandleExitRequested()
	case <-supervisor.Done():
		supervisorLogger.Infof("Sidecar exited on its own")
	}

	supervisor.HandleExit()

	supervisorLogger.Infof("Stopped")
}
