/*
Package worker runs the job dispatch loop shared by every orvdm worker
binary: subscribe to a fixed set of broker task names, resolve the
owning task or transfer record, run the registered TaskHandler, and
report setRunning/setIdle/setError (or trackGearmanJob for synthetic
tasks) back to the control plane.

A handler never talks to the broker directly. Runtime.dispatch wraps
every registered TaskHandler with the bookkeeping spec §4.6 describes:
a crash anywhere inside Begin or Run is caught by a deferred recover
and reported as a "Worker crashed" Fail part rather than propagating
and leaving the job stuck in "running" forever.

Stop and Quit are the two cooperative signals a worker process reacts
to: Stop aborts whatever job is in flight (by cancelling each in-flight
job's context, which transfer.Run watches) but keeps serving new
jobs; Quit does the same and additionally stops the broker's Run loop.
*/
package worker
