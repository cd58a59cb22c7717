package transfer

import (
	"strings"
	"testing"

	"github.com/oceandatatools/openvdm-go/pkg/types"
)

func TestRsyncArgsDryRunBaseline(t *testing.T) {
	opts := RsyncOptions{DryRun: true}
	args := RsyncArgs(opts, "/src/", "/dst/")

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-trinv") || !strings.Contains(joined, "--stats") {
		t.Errorf("dry-run args missing baseline flags: %v", args)
	}
	if strings.Contains(joined, "--progress") {
		t.Errorf("dry-run args should not include --progress: %v", args)
	}
}

func TestRsyncArgsRealRunBaseline(t *testing.T) {
	opts := RsyncOptions{}
	args := RsyncArgs(opts, "/src/", "/dst/")

	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-triv") || !strings.Contains(joined, "--progress") {
		t.Errorf("real-run args missing baseline flags: %v", args)
	}
}

func TestRsyncArgsConditionalFlags(t *testing.T) {
	opts := RsyncOptions{
		SkipEmptyFiles:    true,
		SkipEmptyDirs:     true,
		BandwidthLimitKB:  512,
		RemoveSourceFiles: true,
		SyncFromSource:    true,
		IsRsyncSource:     true,
		PasswordFile:      "/etc/orvdm/rsync.pass",
		IsSSHPeer:         true,
	}
	args := RsyncArgs(opts, "rsync://host/mod/", "/dst/")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"--min-size=1", "-m", "--bwlimit=512", "--remove-source-files",
		"--no-motd", "--password-file=/etc/orvdm/rsync.pass", "--delete", "-e ssh",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in args: %v", want, args)
		}
	}
}

func TestRsyncArgsDarwinOmitsProtectArgs(t *testing.T) {
	args := RsyncArgs(RsyncOptions{IsDarwinPeer: true}, "/src/", "/dst/")
	for _, a := range args {
		if a == "--protect-args" {
			t.Errorf("Darwin peer args should omit --protect-args: %v", args)
		}
	}
}

func TestRsyncArgsRemoveSourceFilesOnlyInRealMode(t *testing.T) {
	args := RsyncArgs(RsyncOptions{DryRun: true, RemoveSourceFiles: true}, "/src/", "/dst/")
	for _, a := range args {
		if a == "--remove-source-files" {
			t.Errorf("dry-run should never include --remove-source-files: %v", args)
		}
	}
}

func TestSMBMountOptionsGuest(t *testing.T) {
	creds := types.TransferCredentials{Domain: "WORKGROUP", UseGuest: true}
	opts := SMBMountOptions(creds, string(DialectSMB2), true)
	if !strings.Contains(opts, "guest") || !strings.Contains(opts, "ro") {
		t.Errorf("SMBMountOptions(guest) = %q, missing expected tokens", opts)
	}
}

func TestSMBMountOptionsUserPass(t *testing.T) {
	creds := types.TransferCredentials{Domain: "WORKGROUP", Username: "rvdas", Password: "secret"}
	opts := SMBMountOptions(creds, string(DialectLegacy), false)
	if !strings.Contains(opts, "username=rvdas") || !strings.Contains(opts, "password=secret") || !strings.Contains(opts, "rw") {
		t.Errorf("SMBMountOptions(user/pass) = %q, missing expected tokens", opts)
	}
}
