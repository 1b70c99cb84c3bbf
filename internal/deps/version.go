package deps

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

const versionTimeout = 3 * time.Second

// ProbeVersion runs path with args and returns the first non-empty line of
// output. Failures yield an empty string; a missing version never fails a
// dependency check.
func ProbeVersion(path string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), versionTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, args...).CombinedOutput() //nolint:gosec
	if err != nil && len(output) == 0 {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			return line
		}
	}
	return ""
}
