// Package transfer builds and runs the rsync/SMB/SSH command lines the
// collection-system, cruise-data, and ship-to-shore transfer handlers
// need, and streams their output into new/updated file lists and
// progress updates.
package transfer

import (
	"fmt"
	"strconv"

	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// RsyncOptions captures the knobs that feed into RsyncArgs. DryRun
// selects the `-trinv --stats` baseline used to count files before the
// real `-triv --progress` transfer.
type RsyncOptions struct {
	DryRun bool

	// IsDarwinPeer omits --protect-args, which GNU rsync's BSD/macOS
	// builds historically mishandle.
	IsDarwinPeer bool

	SkipEmptyFiles    bool
	SkipEmptyDirs     bool
	BandwidthLimitKB  int
	RemoveSourceFiles bool
	SyncFromSource    bool // --delete, real mode only

	// IsRsyncSource true when pulling from an rsync:// daemon module,
	// which adds --no-motd and a --password-file if PasswordFile is set.
	IsRsyncSource bool
	PasswordFile  string

	// IsSSHPeer true adds -e ssh.
	IsSSHPeer bool

	IncludeFromFile string
	ExtraArgs       []string
}

// RsyncArgs returns the argv (excluding the "rsync" program name
// itself) for the given options, source, and destination. dest may be
// empty for a dry-run file-count pass that doesn't need one.
func RsyncArgs(opts RsyncOptions, src, dest string) []string {
	var args []string

	if opts.DryRun {
		args = append(args, "-trinv", "--stats")
	} else {
		args = append(args, "-triv", "--progress")
	}

	if !opts.IsDarwinPeer {
		args = append(args, "--protect-args")
	}
	if opts.SkipEmptyFiles {
		args = append(args, "--min-size=1")
	}
	if opts.SkipEmptyDirs {
		args = append(args, "-m")
	}
	if opts.BandwidthLimitKB != 0 {
		args = append(args, "--bwlimit="+strconv.Itoa(opts.BandwidthLimitKB))
	}
	if opts.RemoveSourceFiles && !opts.DryRun {
		args = append(args, "--remove-source-files")
	}
	if opts.IsRsyncSource {
		args = append(args, "--no-motd")
		if opts.PasswordFile != "" {
			args = append(args, "--password-file="+opts.PasswordFile)
		}
	}
	if opts.SyncFromSource && !opts.DryRun {
		args = append(args, "--delete")
	}
	if opts.IsSSHPeer {
		args = append(args, "-e", "ssh")
	}

	args = append(args, opts.ExtraArgs...)

	if opts.IncludeFromFile != "" {
		args = append(args, "--files-from="+opts.IncludeFromFile, "--from0")
	}

	args = append(args, src)
	if dest != "" {
		args = append(args, dest)
	}

	return args
}

// RsyncOptionsFromCST derives the baseline RsyncOptions for a
// collection-system transfer, setting IsSSHPeer from the transfer type
// and leaving DryRun, IncludeFromFile, IsDarwinPeer, and PasswordFile
// for the caller to fill in once connectivity has been probed.
func RsyncOptionsFromCST(cst types.CollectionSystemTransfer) RsyncOptions {
	return RsyncOptions{
		SkipEmptyFiles:    cst.SkipEmptyFiles,
		SkipEmptyDirs:     cst.SkipEmptyDirs,
		BandwidthLimitKB:  cst.BandwidthLimitKB,
		RemoveSourceFiles: cst.RemoveSourceFiles,
		SyncFromSource:    cst.SyncFromSource,
		IsRsyncSource:     cst.TransferType == types.TransferTypeRsync,
		IsSSHPeer:         cst.TransferType == types.TransferTypeSSH,
	}
}

// RsyncOptionsFromCDT derives the baseline RsyncOptions for a
// cruise-data (or ship-to-shore) transfer.
func RsyncOptionsFromCDT(cdt types.CruiseDataTransfer) RsyncOptions {
	return RsyncOptions{
		BandwidthLimitKB: cdt.BandwidthLimitKB,
		IsRsyncSource:    cdt.TransferType == types.TransferTypeRsync,
		IsSSHPeer:        cdt.TransferType == types.TransferTypeSSH,
	}
}

// SMBMountOptions returns the `-o` option string for a CIFS mount per
// spec §4.3: "rw|ro, domain=, vers=, username=|guest, password=".
func SMBMountOptions(creds types.TransferCredentials, dialect string, readOnly bool) string {
	mode := "rw"
	if readOnly {
		mode = "ro"
	}

	userPart := "username=" + creds.Username
	if creds.UseGuest {
		userPart = "guest"
	}

	return fmt.Sprintf("%s,domain=%s,vers=%s,%s,password=%s", mode, creds.Domain, dialect, userPart, creds.Password)
}
