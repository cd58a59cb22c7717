// Command orvdmctl is the administrative CLI for a running OpenVDM
// job-dispatch core: reset the stale-job table, stop a job by pid, and
// inspect/cancel jobs in flight on a worker's loopback coordinator
// (spec §4.7's stopJob/rebootReset, §12.5's coordinator RPC).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/oceandatatools/openvdm-go/pkg/broker"
	"github.com/oceandatatools/openvdm-go/pkg/config"
	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/coordinator"
	"github.com/oceandatatools/openvdm-go/pkg/handlers"
	"github.com/oceandatatools/openvdm-go/pkg/log"
	"github.com/oceandatatools/openvdm-go/pkg/types"
	"github.com/oceandatatools/openvdm-go/pkg/worker"
)

var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "orvdmctl",
	Short:   "Administer a running OpenVDM job-dispatch core",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("orvdmctl version %s\n", Version))

	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringP("config", "c", "/etc/orvdm/worker.yaml", "Path to config file")

	cobra.OnInitialize(initLogging)

	jobCmd.AddCommand(jobResetCmd)
	jobCmd.AddCommand(jobStopCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobCancelCmd)
	rootCmd.AddCommand(jobCmd)

	jobStopCmd.Flags().String("pid", "", "OS pid of the job to stop (required)")
	jobStopCmd.MarkFlagRequired("pid")

	jobListCmd.Flags().String("worker", "127.0.0.1:9091", "Worker coordinator address (host:port)")
	jobCancelCmd.Flags().String("worker", "127.0.0.1:9091", "Worker coordinator address (host:port)")
	jobCancelCmd.Flags().String("handle", "", "Job handle to cancel (required)")
	jobCancelCmd.MarkFlagRequired("handle")
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and control jobs",
}

func loadControlPlane(cmd *cobra.Command) (*controlplane.Client, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return controlplane.New(cfg.ControlPlane.BaseURL, cfg.ControlPlane.Timeout), nil
}

var jobResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the stale job table (rebootReset)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, err := loadControlPlane(cmd)
		if err != nil {
			return err
		}
		h := &handlers.RebootResetHandler{Deps: handlers.Deps{ControlPlane: cp}}
		job := broker.Job{Handle: "orvdmctl-reset", Task: "rebootReset"}
		result, err := h.Run(context.Background(), &worker.TaskContext{Job: job})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var jobStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal a running job by pid (stopJob)",
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, _ := cmd.Flags().GetString("pid")
		cp, err := loadControlPlane(cmd)
		if err != nil {
			return err
		}
		h := &handlers.StopJobHandler{Deps: handlers.Deps{ControlPlane: cp}}
		job := broker.Job{Handle: "orvdmctl-stop", Task: "stopJob", Payload: types.JobPayload{"pid": pid}}
		result, err := h.Run(context.Background(), &worker.TaskContext{Job: job})
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs currently in flight on a worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("worker")
		client, err := coordinator.Dial(addr)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		jobs, err := client.ListActiveJobs(ctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("no jobs in flight")
			return nil
		}
		for _, j := range jobs {
			fmt.Printf("%s\t%s\tstarted %s\n", j.Handle, j.TaskName, j.StartedAt.Format(time.RFC3339))
		}
		return nil
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a job in flight on a worker by handle",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("worker")
		handle, _ := cmd.Flags().GetString("handle")
		client, err := coordinator.Dial(addr)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cancelled, err := client.CancelJob(ctx, handle)
		if err != nil {
			return err
		}
		if !cancelled {
			return fmt.Errorf("no job with handle %q was found", handle)
		}
		fmt.Printf("cancelled %s\n", handle)
		return nil
	},
}

func printResult(result types.JobResult) {
	for _, part := range result.Parts {
		if part.Reason != "" {
			fmt.Printf("%-40s %-8s %s\n", part.PartName, part.Result, part.Reason)
		} else {
			fmt.Printf("%-40s %-8s\n", part.PartName, part.Result)
		}
	}
}
