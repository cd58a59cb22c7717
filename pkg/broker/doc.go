/*
Package broker defines the job queue seam between the control plane's
job dispatch and the worker runtime. Production wiring will implement
Broker against whatever job server a deployment uses; this module ships
only Fake, an in-process stand-in used throughout the test suite so
that pkg/worker and pkg/handlers tests never need a running broker.
*/
package broker
