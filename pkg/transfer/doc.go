/*
Package transfer builds rsync/SMB/SSH command lines and runs them,
streaming stdout into classified new/updated file lists and mapped
progress percentages.

It is split into:

  - rsyncopts.go — pure option-building (RsyncArgs, SMBMountOptions)
  - probe.go / ssh.go — connectivity probes (SMB dialect negotiation,
    Darwin peer detection over SSH)
  - mount.go — CIFS mount/unmount via the host's mount(8)/umount(8)
  - includefile.go — NUL-terminated --files-from materialization
  - executor.go — process spawn, line classification, progress parsing,
    and cooperative cancellation via CancelFlag

No pure-Go SMB client library appears anywhere in the retrieved
example pack, so SMB operations shell out to smbclient and mount(8)
rather than reimplementing the protocol (see DESIGN.md).
*/
package transfer
