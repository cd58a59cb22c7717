/*
Package metrics provides Prometheus metrics for the job-dispatch core.

Metrics are registered at package init against the default Prometheus
registry and exposed over HTTP via Handler(), the same pattern every
orvdm binary uses for its /metrics endpoint (ground: cuemby-warren's
pkg/metrics). Categories: job lifecycle (dispatched/completed/duration/
crashes), transfer (files by class, bytes, duration), index maintenance
(MD5 summary, dashboard plugin failures), scheduler (ticks, leadership),
size cacher (cycles, failures), and the control-plane client (requests,
duration).

Timer is a small helper: create one at the start of an operation, then
call ObserveDuration (or ObserveDurationVec for labeled histograms) when
it completes.
*/
package metrics
