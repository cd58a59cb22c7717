// Command orvdm-sizecacher measures the current cruise (and lowering,
// when the warehouse shows lowering components) with `du -sb` every
// configured interval and posts the byte count to the control plane
// (spec §4.8).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oceandatatools/openvdm-go/pkg/config"
	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/log"
	"github.com/oceandatatools/openvdm-go/pkg/sizecacher"
	"github.com/oceandatatools/openvdm-go/pkg/storage"
)

var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "orvdm-sizecacher",
	Short:   "OpenVDM size cacher: periodic cruise/lowering size measurement",
	Version: Version,
	RunE:    runSizeCacher,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("orvdm-sizecacher version %s\n", Version))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().StringP("config", "c", "/etc/orvdm/sizecacher.yaml", "Path to config file")
	rootCmd.Flags().Int("interval", 0, "Measurement interval in seconds (overrides config; default 30)")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

func runSizeCacher(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	interval := time.Duration(cfg.SizeCacher.IntervalSeconds) * time.Second
	if v, _ := cmd.Flags().GetInt("interval"); v > 0 {
		interval = time.Duration(v) * time.Second
	}

	cacheDir := cfg.SizeCacher.CacheDir
	if cacheDir == "" {
		cacheDir = "."
	}
	store, err := storage.NewBoltStore(cacheDir, "sizecacher")
	if err != nil {
		return fmt.Errorf("open size cache: %w", err)
	}
	defer store.Close()

	cp := controlplane.New(cfg.ControlPlane.BaseURL, cfg.ControlPlane.Timeout)
	cacher := sizecacher.NewCacher(cp, store, interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		cacher.Run(ctx)
	}()

	log.Logger.Info().Str("interval", interval.String()).Str("cacheFile", filepath.Join(cacheDir, "sizecacher.db")).Msg("size cacher started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Logger.Info().Msg("shutting down")
	cancel()
	<-done
	return nil
}
