// Package filelist builds the {include, exclude} path sets a
// collection-system transfer feeds to the transfer executor: recursive
// enumeration of a local, SMB-mounted, rsync-daemon, or ssh source
// root, followed by the time-window, ASCII, and glob-filter pipeline
// of spec §4.4, processed through a bounded worker pool.
package filelist
