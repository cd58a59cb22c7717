/*
Package pathutil implements the small set of pure functions that the
rest of the tree leans on instead of duplicating: template
substitution for destination directories, ASCII and rsync-partial
filename checks, include/exclude/ignore glob resolution, and
compressing a set of integers into the short "a-b,c,d-e" form used for
log summaries of job ID batches.

These were historically copy-pasted across several helper modules in
the Python original; collapsing them here is deliberate (see
DESIGN.md).
*/
package pathutil
