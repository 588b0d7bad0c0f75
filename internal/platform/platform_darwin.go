//go:build darwin

package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func trustRoot(certPEM []byte) (string, error) {
	tmp, err := os.CreateTemp("", "loggy-ca-*.pem")
	if err != nil {
		return "", fmt.Errorf("write temp cert for trust install: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup

	if _, err := tmp.Write(certPEM); err != nil {
		tmp.Close() //nolint:errcheck
		return "", fmt.Errorf("write temp cert for trust install: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp cert for trust install: %w", err)
	}

	cmd := exec.Command("security", "add-trusted-cert", "-d", "-r", "trustRoot",
		"-k", filepath.Join(os.Getenv("HOME"), "Library/Keychains/login.keychain-db"), tmp.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("security add-trusted-cert: %w (%s)", err, out)
	}
	return "added to login keychain via security(1)", nil
}

func launchBrowser(url string) error {
	return exec.Command("open", url).Start()
}
