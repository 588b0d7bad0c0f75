//go:build linux

package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func trustRoot(certPEM []byte) (string, error) {
	dir := filepath.Join(os.Getenv("HOME"), ".pki", "nssdb")
	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("no NSS database at %s: %w", dir, err)
	}

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

	cmd := exec.Command("certutil", "-d", "sql:"+dir, "-A", "-t", "C,,",
		"-n", "Loggy Proxy CA", "-i", tmp.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("certutil -A: %w (%s)", err, out)
	}
	return "added to NSS database via certutil(1)", nil
}

func launchBrowser(url string) error {
	return exec.Command("xdg-open", url).Start()
}
