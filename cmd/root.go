package cmd

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"

	"Pogger/pkg/config"
	"Pogger/pkg/logger"

	"github.com/spf13/cobra"
)

// Global flags
var (
	archivePathFlag string
	verboseFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "pogger",
	Short: "Pogger - record experiment results into per-run archives",
	Long: `Pogger records the results of experiment functions into a
hierarchical per-run archive, exports the figures they open, and keeps
a log of everything the run printed.

Global Flags:
  --archive-path  Base directory for run archives (overrides config)
  --verbose       Log every write and export`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&archivePathFlag, "archive-path", "", "Base directory for run archives")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Log every write and export")
}

// Execute runs the root command.
func Execute() {
	loadDotEnv()

	level := logger.ParseLevel(os.Getenv("LOG_LEVEL"), logger.WARN)
	logger.Init(level, "pogger")
	defer logger.Sync()

	logger.Debug("System", "Pogger starting", map[string]interface{}{
		"os": runtime.GOOS,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// archiveBase resolves the base directory from the flag, falling back to
// the config file and environment.
func archiveBase() (string, error) {
	if archivePathFlag != "" {
		return archivePathFlag, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	return cfg.ArchivePath, nil
}

// loadDotEnv reads .env file and sets environment variables
func loadDotEnv() {
	file, err := os.Open(".env")
	if err != nil {
		return // Ignore if file doesn't exist
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		if (strings.HasPrefix(val, "\"") && strings.HasSuffix(val, "\"")) ||
			(strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'")) {
			val = val[1 : len(val)-1]
		}

		// Shell env wins
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}
