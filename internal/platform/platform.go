/*
Package platform provides best-effort, OS-specific adapters for installing
the proxy's root certificate into the system trust store and for launching
a browser. Both operations are advisory: a failure here never stops the
proxy or the native-messaging bridge from running, it's only surfaced in
the response the caller gets back.
*/
package platform

// TrustRoot installs certPEM into the current user's trust store. Returns
// a human-readable description of what happened (or would need to happen)
// and an error if the install could not be completed.
func TrustRoot(certPEM []byte) (string, error) {
	return trustRoot(certPEM)
}

// LaunchBrowser best-effort opens url in the user's default browser.
func LaunchBrowser(url string) error {
	return launchBrowser(url)
}
