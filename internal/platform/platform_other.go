//go:build !linux && !darwin

package platform

import "fmt"

func trustRoot(certPEM []byte) (string, error) {
	return "", fmt.Errorf("automatic trust install is not supported on this platform")
}

func launchBrowser(url string) error {
	return fmt.Errorf("automatic browser launch is not supported on this platform")
}
