package scheduler

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// noopFSM is a hashicorp/raft FSM that holds no state. The scheduler
// uses Raft purely for leader election across redundant replicas: the
// log is never applied to anything, so Apply/Snapshot/Restore are all
// no-ops (ground: cuemby-warren/pkg/manager.WarrenFSM, stripped of its
// store-backed Apply switch since there is nothing here to replicate).
type noopFSM struct{}

func (noopFSM) Apply(*raft.Log) interface{} { return nil }

func (noopFSM) Snapshot() (raft.FSMSnapshot, error) { return noopSnapshot{}, nil }

func (noopFSM) Restore(rc io.ReadCloser) error { return rc.Close() }

type noopSnapshot struct{}

func (noopSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }
func (noopSnapshot) Release()                             {}

// election wraps a hashicorp/raft group whose sole purpose is to
// decide which of several scheduler replicas may tick. Standalone mode
// (no configured peers) does not use it: standaloneElection below is
// always leader without running Raft.
type election struct {
	raft *raft.Raft
}

// electionConfig mirrors the subset of config.SchedulerConfig the
// election needs, kept separate so this package doesn't import
// pkg/config.
type electionConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
	Peers    []string // other nodes as "id=host:port" (a bare value is used as both), or empty for standalone
}

// newElection bootstraps (or joins) a Raft group for leader election.
// Ground for the transport/log-store/snapshot-store wiring:
// cuemby-warren/pkg/manager.Manager.Bootstrap.
func newElection(cfg electionConfig) (*election, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("scheduler: raft data dir is required")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("scheduler: create raft data dir: %w", err)
	}

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)

	bindAddr := cfg.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1:0"
	}
	addr, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: resolve raft bind address %q: %w", bindAddr, err)
	}
	transport, err := raft.NewTCPTransport(bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("scheduler: create raft snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("scheduler: create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("scheduler: create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, noopFSM{}, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("scheduler: create raft node: %w", err)
	}

	servers := []raft.Server{{ID: raftConfig.LocalID, Address: transport.LocalAddr()}}
	for _, peer := range cfg.Peers {
		id, peerAddr, ok := strings.Cut(peer, "=")
		if !ok {
			id, peerAddr = peer, peer
		}
		servers = append(servers, raft.Server{ID: raft.ServerID(id), Address: raft.ServerAddress(peerAddr)})
	}
	future := r.BootstrapCluster(raft.Configuration{Servers: servers})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return nil, fmt.Errorf("scheduler: bootstrap raft cluster: %w", err)
	}

	return &election{raft: r}, nil
}

// standaloneElection reports Leader() == true unconditionally, for
// deployments with no --raft-peers configured. It skips Raft entirely
// rather than bootstrapping a throwaway single-node group, since there
// is no data directory or bind address to allocate in that mode.
type standaloneElection struct{}

func (standaloneElection) Leader() bool { return true }
func (standaloneElection) Shutdown()    {}

func (e *election) Leader() bool {
	return e.raft.State() == raft.Leader
}

func (e *election) Shutdown() {
	e.raft.Shutdown()
}

// leadershipGate is the interface the scheduler's tick loop depends
// on; both *election and standaloneElection satisfy it.
type leadershipGate interface {
	Leader() bool
	Shutdown()
}
