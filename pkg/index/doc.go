/*
Package index owns the two files every successful collection-system
transfer updates afterward: the per-cruise MD5 summary and the
data-dashboard manifest.

Both kinds of mutation go through a per-cruise *sync.Mutex obtained
from lockFor, since the control-plane status machine only forbids two
concurrent runs of the *same* CST — nothing stops two different CSTs
for the same cruise finishing within the same second and racing to
rewrite the same summary file (spec §5). Writes land through
atomicWriteFile (temp file in the same directory, fsync, rename) so a
reader never observes a partially written file, which the original
direct-write implementation did not guarantee.
*/
package index
