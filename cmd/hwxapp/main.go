// cmd/hwxapp
//
// Entry point for the KPM monitoring xApp. Responsibilities:
//   - Parse command-line flags (config path, etc.).
//   - Initialise a temporary logger so config loading has a logger.
//   - Load and validate configuration from YAML.
//   - Construct the App (wires all internal components).
//   - Start the App and block until SIGINT/SIGTERM.
//   - Trigger a best-effort graceful shutdown on signal.
package main

import (
	stdctx "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/free5gc/hwxapp/internal/logger"
	"github.com/free5gc/hwxapp/pkg/app"
	"github.com/free5gc/hwxapp/pkg/factory"
)

const shutdownTimeout = 10 * time.Second

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.MainLog.Errorf("%v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	options := &rootOptions{}

	rootCommand := &cobra.Command{
		Use:           "hwxapp",
		Short:         "E2SM-KPM subscription xApp",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runXapp(options)
		},
	}
	rootCommand.PersistentFlags().StringVarP(&options.configPath, "config", "c",
		factory.DefaultConfigPath, "path to xApp config file (YAML)")

	rootCommand.AddCommand(newValidateCommand(options))
	return rootCommand
}

func newValidateCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration, apply defaults and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, readError := factory.ReadConfig(options.configPath)
			if readError != nil {
				return errors.Wrap(readError, "failed to read config")
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "config %s is valid (xapp=%s registry=%s nodeType=%s)\n",
				options.configPath, config.Xapp.Name, config.Registry.BaseURL, config.Subscription.NodeType)
			return err
		},
	}
}

func runXapp(options *rootOptions) error {
	// ---- 1. Temporary logger initialisation ---------------------------------
	//
	// NewApp() will call InitLog again with the level from the config.
	if logError := logger.InitLog("info", false); logError != nil {
		return errors.Wrap(logError, "failed to initialise logging")
	}

	logger.MainLog.Infof("hwxapp starting, configPath=%s", options.configPath)

	// ---- 2. Load configuration ----------------------------------------------

	config, readError := factory.ReadConfig(options.configPath)
	if readError != nil {
		return errors.Wrap(readError, "failed to read config")
	}

	// ---- 3. Build App --------------------------------------------------------

	xapp, appError := app.NewApp(config)
	if appError != nil {
		return errors.Wrap(appError, "failed to create xApp")
	}

	// ---- 4. Start -----------------------------------------------------------

	// Root context for Start; Stop will create its own timeout context.
	rootContext, rootCancel := stdctx.WithCancel(stdctx.Background())
	defer rootCancel()

	if startError := xapp.Start(rootContext); startError != nil {
		return errors.Wrap(startError, "failed to start xApp")
	}

	// ---- 5. Wait for OS signals (Ctrl-C / kill) -----------------------------

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	receivedSignal := <-signalChannel
	logger.MainLog.Infof("received signal=%s, initiating shutdown", receivedSignal.String())

	rootCancel()

	// ---- 6. Graceful shutdown ------------------------------------------------
	//
	// Subscriptions are deleted within the window; past it we exit anyway.
	shutdownContext, shutdownCancel := stdctx.WithTimeout(stdctx.Background(), shutdownTimeout)
	defer shutdownCancel()

	if stopError := xapp.Stop(shutdownContext); stopError != nil {
		logger.MainLog.Warnf("xApp shutdown encountered error: %v", stopError)
	} else {
		logger.MainLog.Infof("xApp shutdown completed within %s", shutdownTimeout)
	}
	return nil
}
