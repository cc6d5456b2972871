package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pendergraft/poolkeeper/pkg/client"
)

var (
	cfgFile string
	server  string
	apiKey  string
)

// Execute runs the CLI
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:   "poolkeeper",
		Short: "Liquid staking pool oracle and operator CLI",
		Long: `poolkeeper builds, checks and submits oracle reports and inspects the
state of a poolkeeper server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: poolkeeper.toml)")
	rootCmd.PersistentFlags().StringVar(&server, "server", "", "server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key for authentication")

	rootCmd.AddCommand(createStatusCmd())
	rootCmd.AddCommand(createReportCmd())
	rootCmd.AddCommand(createReportsCmd())
	rootCmd.AddCommand(createWithdrawalsCmd())
	rootCmd.AddCommand(createAuthCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd.Execute()
}

// getServer returns the server URL from flag, env, config file, or the default
func getServer() string {
	// 1. Command line flag
	if server != "" {
		return server
	}

	// 2. Environment variable
	if env := os.Getenv("POOLKEEPER_SERVER"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Server != "" {
		return config.Server
	}

	return "http://localhost:8080"
}

// getAPIKey returns the API key from flag, env, or credentials file
func getAPIKey() string {
	if apiKey != "" {
		return apiKey
	}

	if env := os.Getenv("POOLKEEPER_API_KEY"); env != "" {
		return env
	}

	// Credentials file (keyed by server URL)
	if cred := getCredential(getServer()); cred != "" {
		return cred
	}

	return ""
}

func newClient() *client.Client {
	return client.New(getServer(), getAPIKey())
}
