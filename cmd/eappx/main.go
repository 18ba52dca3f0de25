package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"

	"github.com/tuxuser/eappx-go/pkg/eappx"
	"github.com/tuxuser/eappx-go/pkg/logging"
	"github.com/tuxuser/eappx-go/pkg/uicolor"
)

const version = "0.1.0"

var (
	packageFile string
	outputDir   string
	keyFile     string
	useTestKey  bool
	logLevel    string

	rootCmd *cobra.Command
	stdout  = colorable.NewColorable(os.Stdout)
)

// testKeyGUIDLow/High and testKeyHex are the well-known test key
// injected by --kt, matching the fixture key used throughout the
// reference test suite.
const (
	testKeyGUIDLow  = "ddafcf67-7b2c-086d-302b-8adac1bdd3a7"
	testKeyGUIDHigh = "7d53aeb8-5922-f062-b1d7-7e09f5a187a0"
	testKeyHex      = "9fe75f879e95a5d7f3715c30fce71067fc346efd680fa25e3c737d76acb72b9d"
)

func init() {
	rootCmd = &cobra.Command{
		Use:     "eappx",
		Short:   "Read and extract EAPPX/MSIX-style encrypted app packages",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "v", "", "Log level (trace, debug, info, warn, error)")

	unpackCmd := &cobra.Command{
		Use:   "unpack",
		Short: "Extract a single package",
		RunE:  runUnpack,
	}
	addExtractFlags(unpackCmd)

	unbundleCmd := &cobra.Command{
		Use:   "unbundle",
		Short: "Extract a bundle (container type is auto-detected from the header)",
		RunE:  runUnpack,
	}
	addExtractFlags(unbundleCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Parse the header and block-map and re-verify every block hash",
		RunE:  runInfo,
	}
	infoCmd.Flags().StringVarP(&packageFile, "package-file", "f", "", "Path to the package or bundle file (required)")
	_ = infoCmd.MarkFlagRequired("package-file")

	packCmd := &cobra.Command{Use: "pack", Short: "Build a package (not implemented)", RunE: notImplemented}
	bundleCmd := &cobra.Command{Use: "bundle", Short: "Build a bundle (not implemented)", RunE: notImplemented}
	encryptCmd := &cobra.Command{Use: "encrypt", Short: "Encrypt a package (not implemented)", RunE: notImplemented}
	decryptCmd := &cobra.Command{Use: "decrypt", Short: "Decrypt a package (not implemented)", RunE: notImplemented}

	rootCmd.AddCommand(unpackCmd, unbundleCmd, infoCmd, packCmd, bundleCmd, encryptCmd, decryptCmd)
}

func addExtractFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&packageFile, "package-file", "f", "", "Path to the package or bundle file (required)")
	cmd.Flags().StringVarP(&outputDir, "output-directory", "d", "", "Directory to extract into (required)")
	cmd.Flags().BoolVar(&useTestKey, "kt", false, "Inject the well-known test key")
	cmd.Flags().StringVar(&keyFile, "kf", "", "Path to a text key file")
	_ = cmd.MarkFlagRequired("package-file")
	_ = cmd.MarkFlagRequired("output-directory")
}

func notImplemented(cmd *cobra.Command, args []string) error {
	return fmt.Errorf("%s: not implemented", cmd.Name())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildLogger(containerPath string) (hclog.Logger, func() error) {
	level := logLevel
	if level == "" {
		level = logging.GetLogLevel()
	}
	return logging.NewContainerLoggerWithFlusher(containerPath, level, os.Stderr)
}

func loadKeys() (*eappx.KeyRegistry, error) {
	keys := eappx.NewKeyRegistry()

	if useTestKey {
		keyBytes, err := hex.DecodeString(testKeyHex)
		if err != nil {
			return nil, err
		}
		keyID, err := eappx.TestKeyID(testKeyGUIDLow, testKeyGUIDHigh)
		if err != nil {
			return nil, err
		}
		keys.Add(keyID, keyBytes)
	}

	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, err
		}
		fileKeys, err := eappx.ParseKeyText(string(data))
		if err != nil {
			return nil, err
		}
		keys.Extend(fileKeys)
	}

	return keys, nil
}

func runUnpack(cmd *cobra.Command, args []string) error {
	keys, err := loadKeys()
	if err != nil {
		return err
	}

	logger, flush := buildLogger(packageFile)
	defer flush()
	logger.Debug("unpack invoked", "package_file", packageFile, "output_dir", outputDir)
	container, err := eappx.Open(packageFile, keys, logger)
	if err != nil {
		logger.Error("failed to open container", "package_file", packageFile, "error", err)
		return err
	}
	defer container.Close()

	uicolor.Info(stdout, "opened %s container %q", container.Header.Magic, packageFile)

	if err := container.Extract(eappx.ExtractOptions{
		OutputDir:       outputDir,
		DoChecksumCheck: true,
	}); err != nil {
		logger.Error("extraction failed", "error", err)
		uicolor.Fail(stdout, "extraction failed: %v", err)
		return err
	}

	uicolor.OK(stdout, "extracted %d file(s) to %s", container.Header.FileCount, outputDir)
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	logger, flush := buildLogger(packageFile)
	defer flush()
	logger.Debug("info invoked", "package_file", packageFile)
	container, err := eappx.Open(packageFile, eappx.NewKeyRegistry(), logger)
	if err != nil {
		logger.Error("failed to open container", "package_file", packageFile, "error", err)
		return err
	}
	defer container.Close()

	h := container.Header
	uicolor.Info(stdout, "kind: %s", h.Magic)
	uicolor.Info(stdout, "package full name: %s", h.PackageFullName)
	uicolor.Info(stdout, "app name: %s", h.AppName())
	uicolor.Info(stdout, "publisher id: %s", h.PublisherID())
	uicolor.Info(stdout, "file count: %d", h.FileCount)

	if err := container.Verify(); err != nil {
		logger.Error("verification failed", "error", err)
		uicolor.Fail(stdout, "verification failed: %v", err)
		return err
	}

	uicolor.OK(stdout, "all block hashes verified")
	return nil
}
