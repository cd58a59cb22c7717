// Command orvdm-scheduler runs the periodic tick loop that submits
// active/configured/required transfer jobs and purges stale transfer
// logs (spec §4.8), holding Raft leadership across replicas when
// --raft-peers names at least one other node.
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
	"github.com/oceandatatools/openvdm-go/pkg/log"
	"github.com/oceandatatools/openvdm-go/pkg/scheduler"
)

var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "orvdm-scheduler",
	Short:   "OpenVDM scheduler: periodic transfer dispatch and log purge",
	Version: Version,
	RunE:    runScheduler,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("orvdm-scheduler version %s\n", Version))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().StringP("config", "c", "/etc/orvdm/scheduler.yaml", "Path to config file")
	rootCmd.Flags().Int("interval", 0, "Tick interval in minutes (overrides config; default 2)")
	rootCmd.Flags().String("raft-node-id", "", "Raft node id (overrides config)")
	rootCmd.Flags().String("raft-bind-addr", "", "Raft transport bind address (overrides config)")
	rootCmd.Flags().String("raft-data-dir", "", "Raft log/snapshot directory (overrides config)")
	rootCmd.Flags().StringSlice("raft-peers", nil, "Other scheduler nodes forming the Raft group, as id=host:port (overrides config)")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func runScheduler(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	schedCfg := scheduler.Config{
		IntervalMinutes: cfg.Scheduler.IntervalMinutes,
		RaftNodeID:      cfg.Scheduler.RaftNodeID,
		RaftBindAddr:    cfg.Scheduler.RaftBindAddr,
		RaftDataDir:     cfg.Scheduler.RaftDataDir,
		RaftPeers:       cfg.Scheduler.RaftPeers,
	}
	if v, _ := cmd.Flags().GetInt("interval"); v > 0 {
		schedCfg.IntervalMinutes = v
	}
	if v, _ := cmd.Flags().GetString("raft-node-id"); v != "" {
		schedCfg.RaftNodeID = v
	}
	if v, _ := cmd.Flags().GetString("raft-bind-addr"); v != "" {
		schedCfg.RaftBindAddr = v
	}
	if v, _ := cmd.Flags().GetString("raft-data-dir"); v != "" {
		schedCfg.RaftDataDir = v
	}
	if v, _ := cmd.Flags().GetStringSlice("raft-peers"); len(v) > 0 {
		schedCfg.RaftPeers = v
	}

	cp := controlplane.New(cfg.ControlPlane.BaseURL, cfg.ControlPlane.Timeout)
	brk := broker.NewFake()

	sched, err := scheduler.NewScheduler(schedCfg, cp, brk)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)
	log.Logger.Info().Int("intervalMinutes", schedCfg.IntervalMinutes).Strs("raftPeers", schedCfg.RaftPeers).Msg("scheduler started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Logger.Info().Msg("shutting down")
	sched.Stop()
	cancel()
	return nil
}
