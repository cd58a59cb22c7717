package transfer

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// MountSMB mounts an SMB share at mountPoint using the CIFS
// filesystem. On failure it attempts a defensive umount of mountPoint
// (the mount may have partially succeeded before erroring) and always
// returns the original error.
func MountSMB(ctx context.Context, creds types.TransferCredentials, dialect SMBDialect, mountPoint string, readOnly bool) error {
	options := SMBMountOptions(creds, string(dialect), readOnly)
	source := "//" + creds.Server + "/" + creds.SourceModule

	cmd := exec.CommandContext(ctx, "mount", "-t", "cifs", source, mountPoint, "-o", options)
	out, err := cmd.CombinedOutput()
	if err != nil {
		_ = exec.CommandContext(ctx, "umount", mountPoint).Run()
		return fmt.Errorf("mount smb %s at %s: %w: %s", source, mountPoint, err, out)
	}
	return nil
}

// UnmountSMB unmounts a previously mounted share. Unmounting a path
// that isn't currently a mount point is reported as an error by
// `umount` itself; callers that don't care should ignore it.
func UnmountSMB(ctx context.Context, mountPoint string) error {
	cmd := exec.CommandContext(ctx, "umount", mountPoint)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("umount %s: %w: %s", mountPoint, err, out)
	}
	return nil
}
