/*
Package controlplane is the only place in this module that speaks HTTP
to the control plane. Every other package — the scheduler, the size
cacher, and every task handler — goes through a *Client rather than
building its own requests, so the wire format (including the
string-valued booleans decoded by BoolString) is defined in exactly
one place.

The client intentionally has no retry logic and no cache: a failed
call returns an error immediately, and callers decide what that means
for them. A task handler normally converts the error into a Fail
result part; the scheduler and size cacher normally log it and try
again on the next tick.
*/
package controlplane
