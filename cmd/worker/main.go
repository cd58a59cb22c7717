// Command orvdm-worker subscribes to the fixed set of broker task
// names and dispatches them through pkg/worker.Runtime, with every
// concrete task handler from pkg/handlers registered (spec §4.6-4.7).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/config"
	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/coordinator"
	"github.com/oceandatatools/openvdm-go/pkg/handlers"
	"github.com/oceandatatools/openvdm-go/pkg/log"
	"github.com/oceandatatools/openvdm-go/pkg/metrics"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "orvdm-worker",
	Short:   "OpenVDM job worker: dispatch cruise/lowering/transfer jobs",
	Version: Version,
	RunE:    runWorker,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("orvdm-worker version %s\n", Version))

	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().StringP("config", "c", "/etc/orvdm/worker.yaml", "Path to config file")
	rootCmd.Flags().CountP("verbose", "v", "Increase log verbosity (repeatable)")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	verbosity, _ := rootCmd.Flags().GetCount("verbose")

	if verbosity >= 2 {
		logLevel = "debug"
	} else if verbosity == 1 && logLevel == "warn" {
		logLevel = "info"
	}

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runWorker(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cp := controlplane.New(cfg.ControlPlane.BaseURL, cfg.ControlPlane.Timeout)

	// The real Gearman wire protocol is out of scope for this module
	// (spec.md's Non-goals); broker.Fake is the only concrete Broker
	// this build ships, and it is what every orvdm binary wires.
	brk := broker.NewFake()

	rt := worker.NewRuntime(brk, cp, log.Logger)
	registerHandlers(rt, cp, brk, cfg)

	coordSrv := coordinator.NewServer(rt)
	coordAddr, err := coordSrv.Listen(cfg.Coordinator.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen coordinator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coordErrCh := make(chan error, 1)
	go func() { coordErrCh <- coordSrv.Serve(ctx, coordAddr) }()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- rt.Run(ctx) }()

	log.Logger.Info().Str("coordinatorAddr", coordAddr).Msg("worker started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	stopSigCh := make(chan os.Signal, 1)
	signal.Notify(stopSigCh, syscall.SIGQUIT)
	go func() {
		for range stopSigCh {
			rt.Stop()
		}
	}()

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-runErrCh:
		if err != nil && ctx.Err() == nil {
			log.Logger.Error().Err(err).Msg("worker runtime exited")
		}
	case err := <-coordErrCh:
		if err != nil {
			log.Logger.Error().Err(err).Msg("coordinator server exited")
		}
	}

	rt.Quit()
	cancel()
	<-runErrCh
	<-coordErrCh
	return brk.Close()
}

// registerHandlers wires every TaskHandler in pkg/handlers to its
// broker task name, matching spec §6.2's task-name list. A handful of
// names (createCruiseDirectory/rebuildCruiseDirectory,
// updateMD5Summary/rebuildMD5Summary, and so on) map to the same
// handler type: the directory pairs share one instance and tell the
// two names apart by which one submitted the job, while the update and
// rebuild index pairs get separate instances differing only in a
// Rebuild flag.
func registerHandlers(rt *worker.Runtime, cp *controlplane.Client, brk broker.Broker, cfg *config.Config) {
	submit := brk.Submit

	cruiseDir := &handlers.CruiseDirectoryHandler{Deps: handlers.Deps{ControlPlane: cp}}
	must(rt.RegisterHandler("createCruiseDirectory", cruiseDir))
	must(rt.RegisterHandler("rebuildCruiseDirectory", cruiseDir))

	loweringDir := &handlers.LoweringDirectoryHandler{Deps: handlers.Deps{ControlPlane: cp}}
	must(rt.RegisterHandler("createLoweringDirectory", loweringDir))
	must(rt.RegisterHandler("rebuildLoweringDirectory", loweringDir))

	must(rt.RegisterHandler("setupNewCruise", &handlers.SetupNewCruiseHandler{
		Deps: handlers.Deps{ControlPlane: cp}, Submit: submit,
	}))
	must(rt.RegisterHandler("finalizeCurrentCruise", &handlers.FinalizeCurrentCruiseHandler{
		Deps: handlers.Deps{ControlPlane: cp}, Submit: submit,
	}))
	must(rt.RegisterHandler("setupNewLowering", &handlers.SetupNewLoweringHandler{
		Deps: handlers.Deps{ControlPlane: cp}, Submit: submit,
	}))
	must(rt.RegisterHandler("finalizeCurrentLowering", &handlers.FinalizeCurrentLoweringHandler{
		Deps: handlers.Deps{ControlPlane: cp}, Submit: submit,
	}))

	must(rt.RegisterHandler("updateMD5Summary", &handlers.MD5SummaryHandler{Deps: handlers.Deps{ControlPlane: cp}}))
	must(rt.RegisterHandler("rebuildMD5Summary", &handlers.MD5SummaryHandler{Deps: handlers.Deps{ControlPlane: cp}, Rebuild: true}))

	dashboard := handlers.DataDashboardHandler{
		Deps:         handlers.Deps{ControlPlane: cp},
		PluginDir:    cfg.Warehouse.PluginDir,
		PluginSuffix: cfg.Warehouse.PluginSuffix,
	}
	updateDashboard := dashboard
	rebuildDashboard := dashboard
	rebuildDashboard.Rebuild = true
	must(rt.RegisterHandler("updateDataDashboard", &updateDashboard))
	must(rt.RegisterHandler("rebuildDataDashboard", &rebuildDashboard))

	must(rt.RegisterHandler("runCollectionSystemTransfer", &handlers.CollectionSystemTransferHandler{Deps: handlers.Deps{ControlPlane: cp}}))
	must(rt.RegisterHandler("testCollectionSystemTransfer", &handlers.CollectionSystemTransferTestHandler{Deps: handlers.Deps{ControlPlane: cp}}))
	must(rt.RegisterHandler("runCruiseDataTransfer", &handlers.CruiseDataTransferHandler{Deps: handlers.Deps{ControlPlane: cp}}))
	must(rt.RegisterHandler("testCruiseDataTransfer", &handlers.CruiseDataTransferTestHandler{Deps: handlers.Deps{ControlPlane: cp}}))
	must(rt.RegisterHandler("runShipToShoreTransfer", &handlers.ShipToShoreTransferHandler{
		Deps: handlers.Deps{ControlPlane: cp},
		Lowerings: func(ctx context.Context, cruiseID string) ([]types.Lowering, error) {
			current, err := cp.CurrentLowering(ctx)
			if err != nil {
				return nil, err
			}
			if current.ID == "" {
				return nil, nil
			}
			return []types.Lowering{*current}, nil
		},
	}))

	must(rt.RegisterHandler("postHook", &handlers.PostHookHandler{Deps: handlers.Deps{ControlPlane: cp}}))
	must(rt.RegisterHandler("stopJob", &handlers.StopJobHandler{Deps: handlers.Deps{ControlPlane: cp}}))
	must(rt.RegisterHandler("rebootReset", &handlers.RebootResetHandler{Deps: handlers.Deps{ControlPlane: cp}}))

	worker.RegisterSyntheticTask("stopJob", types.Task{Name: "stopJob", LongName: "Stop Running Job"})
	worker.RegisterSyntheticTask("rebootReset", types.Task{Name: "rebootReset", LongName: "Reset Jobs at Reboot"})
	worker.RegisterSyntheticTask("postHook", types.Task{Name: "postHook", LongName: "Post-Transfer Hook"})
}

func must(err error) {
	if err != nil {
		log.Logger.Fatal().Err(err).Msg("register task handler")
	}
}
