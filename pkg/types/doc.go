/*
Package types defines the core data structures shared by the control-plane
client, the worker runtime, and the task handlers.

# Core Types

Cruise structure:
  - Cruise, Lowering: the top-level episode and its nested sub-episodes.

Transfers:
  - CollectionSystemTransfer: inbound pipeline from an acquisition source.
  - CruiseDataTransfer: outbound pipeline to an external destination.
  - ShipToShoreTransfer: a prioritized include-filter bundle for the
    bandwidth-limited shore path.
  - ExtraDirectory: an additional destination rooted under the cruise.
  - TransferType, Status, Scope: the shared enums transfers are built from.

Jobs:
  - Task: a named, persistent unit of work.
  - JobPayload: the free-form map carried as JSON over the broker.
  - JobResult, JobPart: what a handler reports back per run.

# Status

Status values mirror the four states every transfer and task cycles
through: running while a job owns it, idle between runs, error after a
failed run, and unused when disabled. Handlers set this via the
control-plane client rather than mutating a shared struct.

# See Also

  - pkg/controlplane for the client that reads and writes these types
  - pkg/handlers for the task handlers that operate on them
*/
package types
