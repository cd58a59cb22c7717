package transfer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/oceandatatools/openvdm-go/pkg/types"
)

// SMBDialect is the negotiated CIFS protocol version string passed to
// SMBMountOptions.
type SMBDialect string

const (
	DialectLegacy SMBDialect = "1.0"
	DialectSMB2   SMBDialect = "2.1"
)

// ProbeSMB runs `smbclient -L ... -m SMB2 -g` against creds.Server and
// returns the dialect to mount with. A Windows 5.1 (XP/2003) server
// only speaks the legacy dialect; anything else gets 2.1.
func ProbeSMB(ctx context.Context, creds types.TransferCredentials) (SMBDialect, error) {
	args := []string{"-L", creds.Server, "-W", creds.Domain, "-m", "SMB2", "-g"}
	if creds.UseGuest {
		args = append(args, "-N")
	} else {
		args = append(args, "-U", creds.Username+"%"+creds.Password)
	}

	cmd := exec.CommandContext(ctx, "smbclient", args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()

	dialect := DialectSMB2
	unreachable := err != nil

	scanner := bufio.NewScanner(bytes.NewReader(out.Bytes()))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "OS=[Windows 5.1]") {
			dialect = DialectLegacy
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "nt_status") || strings.Contains(lower, "failed") {
			unreachable = true
		}
	}

	if unreachable {
		return "", fmt.Errorf("smb server %s unreachable", creds.Server)
	}
	return dialect, nil
}

// ProbeDarwinPeer SSHes into the server and runs `uname -s`, returning
// true when the remote is a Darwin (macOS) host, in which case the
// rsync option builder must omit --protect-args.
func ProbeDarwinPeer(ctx context.Context, creds types.TransferCredentials) (bool, error) {
	config := &ssh.ClientConfig{
		User:            creds.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	if creds.PrivateKeyPath != "" {
		signer, err := loadSigner(creds.PrivateKeyPath)
		if err != nil {
			return false, fmt.Errorf("load ssh key %s: %w", creds.PrivateKeyPath, err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	} else {
		config.Auth = []ssh.AuthMethod{ssh.Password(creds.Password)}
	}

	addr := creds.Server
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}

	client, err := dialSSHContext(ctx, addr, config)
	if err != nil {
		return false, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return false, fmt.Errorf("ssh session %s: %w", addr, err)
	}
	defer session.Close()

	out, err := session.CombinedOutput("uname -s")
	if err != nil {
		return false, fmt.Errorf("uname -s on %s: %w", addr, err)
	}

	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "Darwin") {
			return true, nil
		}
	}
	return false, nil
}
