//go:build windows

package bridge

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindRuntime resolves the bridge binary next to the executable or the working
// directory under bin/, falling back to PATH.
func FindRuntime(runtime string) (string, error) {
	lookup := []string{}

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	lookup = append(lookup, filepath.Dir(exePath))

	exePath, err = os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	lookup = append(lookup, exePath)

	for _, exeDir := range lookup {
		binPath := filepath.Join(exeDir, "bin", fmt.Sprintf("%s.exe", runtime))
		if _, err = os.Stat(binPath); err != nil {
			continue // continue to next directory
		}

		return binPath, nil
	}

	binPath, err := exec.LookPath(runtime)
	if err != nil {
		return "", fmt.Errorf("failed to find binary '%s': %w", runtime, err)
	}

	return binPath, nil
}
