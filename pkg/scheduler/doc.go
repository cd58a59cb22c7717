/*
Package scheduler ticks once per configured interval, aligned to the
next wall-clock minute boundary, and on each tick:

 1. Submits runCollectionSystemTransfer for every active collection
    system transfer.
 2. Submits runCruiseDataTransfer for every configured (non ship-to-
    shore) cruise data transfer.
 3. Submits runCruiseDataTransfer for the single required ship-to-shore
    transfer named "SSDW".
 4. Purges transfer logs older than the control-plane-configured purge
    interval (a phrase like "12 hours" or "3 days 6 hours", parsed by
    pkg/pathutil.ParsePurgeInterval).

This is spec §4.8's scheduler. Ground for the tick/Start/Stop shape:
cuemby-warren/pkg/scheduler's NewScheduler/Start (go run())/
time.Ticker/stopCh, generalized from a fixed 5s container-placement
loop to a configurable, wall-clock-aligned job-submission loop.

# High availability

Multiple scheduler processes may run for redundancy; only the Raft
leader ticks, so a crashed leader's replicas take over without
double-submitting jobs. The Raft group (election.go) uses a no-op FSM
— there is nothing to replicate, only a leader to elect — backed by
raft-boltdb/bbolt log and stable stores, grounded on
cuemby-warren/pkg/manager.Manager.Bootstrap's transport/store wiring.
A scheduler with no configured Raft peers skips Raft entirely and runs
standalone, always holding leadership.
*/
package scheduler
