package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"courier/internal/app"
	"courier/internal/config"
	"courier/internal/logging"
)

const shutdownTimeout = 30 * time.Second

// options are the command-line overrides layered on top of config.Load
type options struct {
	load config.LoadOptions
	port int
}

// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := run(os.Args[1:], os.Stderr, signals); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options

	flags := pflag.NewFlagSet("courier", pflag.ContinueOnError)
	flags.SetOutput(output)
	flags.StringVarP(&opts.load.ConfigFile, "config", "c", "", "path to a JSON configuration file")
	flags.StringVar(&opts.load.EnvFile, "env-file", "", "path to a dotenv file (default ./.env when present)")
	flags.IntVarP(&opts.port, "port", "p", 0, "HTTP listen port, overrides PORT and the config file")

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if flags.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	return opts, nil
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
// Signal handling ensures graceful shutdown in production environments
func run(args []string, stderr io.Writer, signals <-chan os.Signal) error {
	// STEP 1: Load configuration with precedence (flags > file > env > defaults)
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.load)
	if err != nil {
		return err
	}
	if opts.port > 0 {
		cfg.HTTP.Port = opts.port
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return err
	}

	// STEP 2: Create application with configuration
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// STEP 3: Start serving; the hub context is independent of signals so
	// disconnects are still processed while Stop drains websocket clients
	if err := application.Start(context.Background()); err != nil {
		shutdown(application, logger)
		return fmt.Errorf("application error: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- application.Wait() }()

	// STEP 4: Wait for shutdown signal or server failure
	select {
	case err := <-serveErr:
		shutdown(application, logger)
		if err != nil {
			return fmt.Errorf("application error: %w", err)
		}
		return nil
	case sig := <-signals:
		logger.WithField("signal", sig.String()).Info("Received signal, shutting down gracefully")
		if err := shutdown(application, logger); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}
}

// shutdown bounds Stop so a stuck component cannot hang the process
func shutdown(application *app.Application, logger logrus.FieldLogger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := application.Stop(ctx)
	if err != nil {
		logger.WithError(err).Warn("Shutdown completed with errors")
	}
	return err
}
