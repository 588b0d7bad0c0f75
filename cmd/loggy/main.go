/*
loggy - an intercepting HTTPS proxy that captures and normalizes
outbound analytics traffic.

Usage:

	loggy proxy
	loggy install <extension-id>
	loggy trust-cert
	loggy generate-ca [--force]
	loggy config dump
	loggy config validate
	loggy version
	loggy (no args, stdin not a TTY) — native-messaging supervisor loop
*/
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jnakagawa/loggy/internal/ca"
	"github.com/jnakagawa/loggy/internal/config"
	"github.com/jnakagawa/loggy/internal/controlplane"
	"github.com/jnakagawa/loggy/internal/eventbuf"
	"github.com/jnakagawa/loggy/internal/logbuf"
	"github.com/jnakagawa/loggy/internal/logging"
	"github.com/jnakagawa/loggy/internal/mitmproxy"
	"github.com/jnakagawa/loggy/internal/nativemsg"
	"github.com/jnakagawa/loggy/internal/sources"
	"github.com/jnakagawa/loggy/internal/version"
)

var (
	flagListen     string
	flagAPIAddr    string
	flagLogDir     string
	flagVerbose    bool
	flagDataDir    string
	flagConfigPath string
	flagForceCA    bool
)

var rootCmd = &cobra.Command{
	Use:   "loggy",
	Short: "Intercepting HTTPS proxy for analytics traffic",
	RunE:  runRootDefault,
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the proxy and control-plane API",
	RunE:  runProxy,
}

var installCmd = &cobra.Command{
	Use:   "install [extension-id]",
	Short: "Write the native-messaging host manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runInstall,
}

var trustCertCmd = &cobra.Command{
	Use:   "trust-cert",
	Short: "Install the root CA certificate into the platform trust store",
	RunE:  runTrustCert,
}

var generateCACmd = &cobra.Command{
	Use:   "generate-ca",
	Short: "Generate a root CA certificate and private key",
	RunE:  runGenerateCA,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the resolved configuration as YAML",
	RunE:  runConfigDump,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and exit",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", "", "config file path (default: loggy.yml in current directory)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "directory for CA material, sources.db, and the proxy PID file")

	rootCmd.Flags().StringVarP(&flagListen, "listen", "a", "", "proxy listen address (host:port)")
	rootCmd.Flags().StringVar(&flagAPIAddr, "api-addr", "", "control-plane HTTP API address (host:port)")
	rootCmd.Flags().StringVar(&flagLogDir, "log-dir", "", "directory for log files (empty to disable file logging)")
	rootCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose (DEBUG) logging")

	proxyCmd.Flags().AddFlagSet(rootCmd.Flags())
	generateCACmd.Flags().BoolVar(&flagForceCA, "force", false, "overwrite an existing CA")

	configCmd.AddCommand(configDumpCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(trustCertCmd)
	rootCmd.AddCommand(generateCACmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig loads and merges configuration from file and CLI flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, cfgPath, err := config.Load(flagConfigPath)
	if err != nil {
		return cfg, err
	}
	if cfgPath != "" {
		fmt.Fprintf(os.Stderr, "config: loaded %s\n", cfgPath)
	}

	overrides := config.CLIOverrides{}
	if cmd.Flags().Changed("listen") {
		overrides.Listen = &flagListen
	}
	if cmd.Flags().Changed("api-addr") {
		overrides.APIAddr = &flagAPIAddr
	}
	if cmd.Flags().Changed("log-dir") {
		overrides.LogDir = &flagLogDir
	}
	if cmd.Flags().Changed("verbose") {
		overrides.Verbose = &flagVerbose
	}
	if cmd.Flags().Changed("data-dir") {
		overrides.DataDir = &flagDataDir
	}
	cfg.Merge(overrides)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// runRootDefault implements `loggy` with no subcommand: the
// native-messaging supervisor loop when invoked by a host browser
// (stdin is not a terminal), otherwise cobra's usual help text.
func runRootDefault(cmd *cobra.Command, args []string) error {
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return cmd.Help()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sup := nativemsg.New(nativemsg.Config{
		DataDir:    cfg.DataDir,
		ListenAddr: cfg.Listen,
		Logger:     slog.Default(),
	})
	return sup.Run(ctx, os.Stdin, os.Stdout)
}

func runProxy(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logBuf := logbuf.New(1000)
	logResult := logging.Setup(logging.Config{
		LogDir:        cfg.LogDir,
		Verbose:       cfg.Verbose,
		ExtraHandlers: []slog.Handler{logBuf.Handler()},
	})
	defer logResult.Cleanup()
	logger := logResult.Logger

	certPath := filepath.Join(cfg.DataDir, cfg.CA.Cert)
	keyPath := filepath.Join(cfg.DataDir, cfg.CA.Key)
	caStore, err := ca.EnsureRoot(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("ca: %w", err)
	}
	logger.Info("ca ready", "fingerprint", caStore.Fingerprint, "expires", caStore.NotAfter.Format("2006-01-02"))

	store, err := sources.OpenStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	defer store.Close() //nolint:errcheck // best-effort on shutdown

	registry := sources.NewRegistry()
	persisted, err := store.LoadAll()
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	if len(persisted) == 0 {
		persisted = sources.Defaults()
		if err := store.ReplaceAll(persisted); err != nil {
			logger.Warn("failed to persist seed sources", "error", err)
		}
	}
	registry.Replace(persisted)

	if unmatched, uerr := store.LoadUnmatched(); uerr == nil {
		registry.SeedUnmatched(unmatched)
	}

	buffer := eventbuf.New(cfg.EventBuf.Capacity)

	proxySrv := mitmproxy.New(mitmproxy.Config{
		ListenAddr:     cfg.Listen,
		CA:             caStore,
		Registry:       registry,
		Buffer:         buffer,
		Logger:         logger,
		Verbose:        cfg.Verbose,
		ConnectTimeout: cfg.Timeouts.Connect.Duration,
		IdleTimeout:    cfg.Timeouts.Idle.Duration,
	})

	apiSrv := controlplane.New(controlplane.Config{
		ListenAddr:   cfg.APIAddr,
		Registry:     registry,
		Buffer:       buffer,
		Store:        store,
		RecentErrors: logBuf,
		Logger:       logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("loggy starting",
			"version", version.Full(),
			"listen", cfg.Listen,
			"api_addr", cfg.APIAddr,
			"data_dir", cfg.DataDir,
			"sources", len(registry.List()),
		)
		if err := proxySrv.ListenAndServe(); err != nil {
			logger.Error("proxy server error", "error", err)
		}
	}()

	go func() {
		if err := apiSrv.ListenAndServe(); err != nil {
			logger.Error("control plane error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown.Duration)
	defer cancel()

	if err := proxySrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("proxy shutdown error", "error", err)
	}
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control plane shutdown error", "error", err)
	}

	logger.Info("loggy stopped")
	return nil
}

func runTrustCert(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	certPath := filepath.Join(cfg.DataDir, cfg.CA.Cert)
	keyPath := filepath.Join(cfg.DataDir, cfg.CA.Key)
	caStore, err := ca.EnsureRoot(certPath, keyPath)
	if err != nil {
		return fmt.Errorf("ca: %w", err)
	}

	detail, err := caStore.TrustRoot()
	if err != nil {
		return fmt.Errorf("trust root: %w", err)
	}
	fmt.Fprintln(os.Stderr, detail)
	return nil
}

func runGenerateCA(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	certPath := filepath.Join(cfg.DataDir, cfg.CA.Cert)
	keyPath := filepath.Join(cfg.DataDir, cfg.CA.Key)

	if err := ca.GenerateRoot(certPath, keyPath, flagForceCA); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "CA certificate: %s\n", certPath)
	fmt.Fprintf(os.Stderr, "CA private key: %s\n", keyPath)
	fmt.Fprintln(os.Stderr, "Run 'loggy trust-cert' to install it on this device.")
	return nil
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out, err := cfg.Dump()
	if err != nil {
		return fmt.Errorf("dump config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if _, err := loadConfig(cmd); err != nil {
		return err
	}
	fmt.Println("config: valid")
	return nil
}

// hostManifest is the native-messaging host registration Chrome-family
// browsers read from their NativeMessagingHosts directory.
type hostManifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	AllowedOrigins []string `json:"allowed_origins"`
}

func runInstall(cmd *cobra.Command, args []string) error {
	extensionID := args[0]

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	binPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	wrapperPath := filepath.Join(cfg.DataDir, "loggy-native-host.sh")
	wrapper := fmt.Sprintf("#!/bin/sh\nexec %q \"$@\"\n", binPath)
	if err := os.WriteFile(wrapperPath, []byte(wrapper), 0o755); err != nil { //nolint:gosec // wrapper must be executable
		return fmt.Errorf("write wrapper script: %w", err)
	}

	manifest := hostManifest{
		Name:           "com.loggy.native_host",
		Description:    "loggy proxy lifecycle bridge",
		Path:           wrapperPath,
		Type:           "stdio",
		AllowedOrigins: []string{fmt.Sprintf("chrome-extension://%s/", extensionID)},
	}

	dir, err := nativeMessagingHostsDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create native-messaging-hosts dir: %w", err)
	}

	manifestPath := filepath.Join(dir, manifest.Name+".json")
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil { //nolint:gosec // manifest is not sensitive
		return fmt.Errorf("write manifest: %w", err)
	}

	fmt.Fprintf(os.Stderr, "native messaging host installed: %s\n", manifestPath)
	return nil
}

// nativeMessagingHostsDir returns the platform-appropriate directory
// Chrome-family browsers scan for native-messaging host manifests.
func nativeMessagingHostsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Google", "Chrome", "NativeMessagingHosts"), nil
	case "linux":
		return filepath.Join(home, ".config", "google-chrome", "NativeMessagingHosts"), nil
	default:
		return "", fmt.Errorf("native messaging host install is not supported on %s", runtime.GOOS)
	}
}
