package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const configFileName = "DocTools.config"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "doctools",
		Short:         "Document tools server: tool catalog, file staging and simulated processing",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is normal outside development.
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "Warning: failed to load .env: %v\n", err)
			}
			if configPath == "" {
				p, err := defaultConfigPath()
				if err != nil {
					return err
				}
				configPath = p
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the XML config file (default: next to the executable)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	})
	root.AddCommand(newToolsCmd())

	return root
}

// defaultConfigPath places the config file next to the executable.
func defaultConfigPath() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), configFileName), nil
}
