package scheduler

import "testing"

func TestStandaloneElectionAlwaysLeader(t *testing.T) {
	var gate leadershipGate = standaloneElection{}
	if !gate.Leader() {
		t.Fatal("expected standaloneElection.Leader() to always report true")
	}
	gate.Shutdown() // must not panic
}

func TestNewSchedulerStandaloneWhenNoPeers(t *testing.T) {
	sched, err := NewScheduler(Config{IntervalMinutes: 2}, nil, &fakeSubmitter{})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if _, ok := sched.gate.(standaloneElection); !ok {
		t.Fatalf("expected standalone election gate with no raft peers, got %T", sched.gate)
	}
}
