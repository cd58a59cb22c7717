package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/oceandatatools/openvdm-go/pkg/controlplane"
	"github.com/oceandatatools/openvdm-go/pkg/log"
	"github.com/oceandatatools/openvdm-go/pkg/metrics"
	"github.com/oceandatatools/openvdm-go/pkg/pathutil"
	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// Submitter is the subset of broker.Broker the scheduler needs: it
// only ever fires jobs, it never waits on a handle or registers a
// handler.
type Submitter interface {
	Submit(ctx context.Context, taskName string, payload types.JobPayload) (handle string, err error)
}

// Config configures a Scheduler instance.
type Config struct {
	IntervalMinutes int // how often to tick; wall-clock-minute aligned
	RaftNodeID      string
	RaftBindAddr    string
	RaftDataDir     string
	RaftPeers       []string // other nodes as "id=host:port", standalone (always-leader) if empty
}

// Scheduler submits the per-tick background jobs described in spec
// §4.8 and purges stale transfer logs, but only while it holds Raft
// leadership.
type Scheduler struct {
	cfg          Config
	controlPlane *controlplane.Client
	broker       Submitter
	logger       zerolog.Logger

	gate leadershipGate

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler wires a Scheduler. When cfg.RaftPeers is empty the
// scheduler runs standalone (always leader); otherwise it bootstraps
// (or joins) a Raft group at cfg.RaftBindAddr/cfg.RaftDataDir.
func NewScheduler(cfg Config, cp *controlplane.Client, broker Submitter) (*Scheduler, error) {
	var gate leadershipGate
	if len(cfg.RaftPeers) == 0 {
		gate = standaloneElection{}
	} else {
		e, err := newElection(electionConfig{
			NodeID:   cfg.RaftNodeID,
			BindAddr: cfg.RaftBindAddr,
			DataDir:  cfg.RaftDataDir,
			Peers:    cfg.RaftPeers,
		})
		if err != nil {
			return nil, err
		}
		gate = e
	}

	return &Scheduler{
		cfg:          cfg,
		controlPlane: cp,
		broker:       broker,
		logger:       log.WithComponent("scheduler"),
		gate:         gate,
	}, nil
}

// Start begins the tick loop in a goroutine. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(ctx)
}

// Stop signals the tick loop to exit and blocks until it has, then
// releases the Raft node.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
	s.gate.Shutdown()
}

// run aligns to the next wall-clock minute boundary, then ticks every
// cfg.IntervalMinutes, per spec §4.8.
func (s *Scheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	interval := time.Duration(s.cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 2 * time.Minute
	}

	if wait := time.Until(nextMinuteBoundary(time.Now())); wait > 0 {
		select {
		case <-time.After(wait):
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// nextMinuteBoundary returns the next wall-clock minute boundary
// strictly after now.
func nextMinuteBoundary(now time.Time) time.Time {
	truncated := now.Truncate(time.Minute)
	if !truncated.After(now) {
		truncated = truncated.Add(time.Minute)
	}
	return truncated
}

// tick runs one scheduling cycle if this process holds Raft
// leadership; otherwise it's a no-op.
func (s *Scheduler) tick(ctx context.Context) {
	isLeader := s.gate.Leader()
	if isLeader {
		metrics.SchedulerIsLeader.Set(1)
	} else {
		metrics.SchedulerIsLeader.Set(0)
		return
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulerTickDuration)

	s.submitActiveCollectionSystemTransfers(ctx)
	s.submitConfiguredCruiseDataTransfers(ctx)
	s.submitRequiredShipToShore(ctx)
	s.purgeStaleTransferLogs(ctx)

	metrics.SchedulerTicksTotal.Inc()
}

func (s *Scheduler) submitActiveCollectionSystemTransfers(ctx context.Context) {
	csts, err := s.controlPlane.CollectionSystemTransfers(ctx, true)
	if err != nil {
		s.logger.Error().Err(err).Msg("list active collection system transfers")
		return
	}
	for _, cst := range csts {
		if _, err := s.broker.Submit(ctx, "runCollectionSystemTransfer", types.JobPayload{
			"collectionSystemTransferID": cst.ID,
		}); err != nil {
			s.logger.Error().Err(err).Str("cst", cst.Name).Msg("submit collection system transfer")
		}
	}
}

func (s *Scheduler) submitConfiguredCruiseDataTransfers(ctx context.Context) {
	cdts, err := s.controlPlane.CruiseDataTransfers(ctx, true, false)
	if err != nil {
		s.logger.Error().Err(err).Msg("list configured cruise data transfers")
		return
	}
	for _, cdt := range cdts {
		if cdt.IsShipToShore {
			continue // the required S2S transfer is submitted separately, below
		}
		if _, err := s.broker.Submit(ctx, "runCruiseDataTransfer", types.JobPayload{
			"cruiseDataTransferID": cdt.ID,
		}); err != nil {
			s.logger.Error().Err(err).Str("cdt", cdt.Name).Msg("submit cruise data transfer")
		}
	}
}

// shipToShoreTransferName is the fixed name of the required ship-to-
// shore data-warehouse transfer, per spec §4.8.
const shipToShoreTransferName = "SSDW"

func (s *Scheduler) submitRequiredShipToShore(ctx context.Context) {
	cdts, err := s.controlPlane.CruiseDataTransfers(ctx, false, true)
	if err != nil {
		s.logger.Error().Err(err).Msg("list required cruise data transfers")
		return
	}
	for _, cdt := range cdts {
		if cdt.Name != shipToShoreTransferName {
			continue
		}
		if _, err := s.broker.Submit(ctx, "runCruiseDataTransfer", types.JobPayload{
			"cruiseDataTransferID": cdt.ID,
		}); err != nil {
			s.logger.Error().Err(err).Str("cdt", cdt.Name).Msg("submit ship-to-shore transfer")
		}
		return
	}
	s.logger.Warn().Str("name", shipToShoreTransferName).Msg("required ship-to-shore transfer not found")
}

// purgeStaleTransferLogs removes transfer logs older than the
// control-plane-configured purge interval, per spec §4.8 and §4.9.
func (s *Scheduler) purgeStaleTransferLogs(ctx context.Context) {
	phrase, err := s.controlPlane.LogfilePurgeInterval(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("lookup logfile purge interval")
		return
	}
	maxAge, err := pathutil.ParsePurgeInterval(phrase)
	if err != nil {
		s.logger.Error().Err(err).Str("phrase", phrase).Msg("parse logfile purge interval")
		return
	}
	if maxAge <= 0 {
		return
	}

	warehouse, err := s.controlPlane.WarehouseConfig(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("lookup warehouse configuration")
		return
	}
	cruise, err := s.controlPlane.CurrentCruise(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("lookup current cruise")
		return
	}

	logsDir := filepath.Join(warehouse.CruiseDir(cruise.ID), warehouse.TransferLogsDir)
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(logsDir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error().Err(err).Str("dir", logsDir).Msg("read transfer logs directory")
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(logsDir, entry.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Error().Err(err).Str("path", path).Msg("purge transfer log")
			}
		}
	}
}
