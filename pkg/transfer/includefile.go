package transfer

import (
	"fmt"
	"os"
)

// WriteIncludeFile writes one path per line, each terminated by a NUL
// byte rather than a newline, matching rsync's --files-from when fed
// via --from0-equivalent NUL-terminated input: paths containing
// embedded newlines (rare, but seen in cruise data filenames) survive
// intact. dir selects the scoped temp directory the file is created
// under; "" uses the OS default.
func WriteIncludeFile(dir string, entries []string) (string, error) {
	f, err := os.CreateTemp(dir, "orvdm-include-*.lst")
	if err != nil {
		return "", fmt.Errorf("create include file: %w", err)
	}
	defer f.Close()

	for _, entry := range entries {
		if _, err := f.WriteString(entry); err != nil {
			return "", fmt.Errorf("write include file: %w", err)
		}
		if _, err := f.Write([]byte{0}); err != nil {
			return "", fmt.Errorf("write include file: %w", err)
		}
	}

	return f.Name(), nil
}
