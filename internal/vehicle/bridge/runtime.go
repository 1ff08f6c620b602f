//go:build !windows

package bridge

import (
	"fmt"
	"os/exec"
)

// FindRuntime resolves the bridge binary on PATH. An absolute or relative path
// is returned as is if it points to an executable.
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", fmt.Errorf("finding bridge runtime '%s': %w", runtime, err)
	}

	return binPath, nil
}
