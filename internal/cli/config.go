package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"poolkeeper.toml", ".poolkeeper.toml"}

// ProjectConfig is the oracle's TOML configuration
type ProjectConfig struct {
	Server string       `toml:"server"`
	Beacon BeaconConfig `toml:"beacon,omitempty"`
}

// BeaconConfig selects the consensus node and the pool's validators
type BeaconConfig struct {
	Endpoint       string   `toml:"endpoint,omitempty"`
	Pubkeys        []string `toml:"pubkeys,omitempty"`
	SlotsPerEpoch  uint64   `toml:"slots_per_epoch,omitempty"`
	SecondsPerSlot uint64   `toml:"seconds_per_slot,omitempty"`
	TimeoutSeconds int      `toml:"timeout_seconds,omitempty"`
}

// Timeout returns the per-request beacon timeout, 20s by default.
func (b BeaconConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// ServerConfig is the global server configuration (stored in ~/.poolkeeper/config.yaml)
type ServerConfig struct {
	Server string `yaml:"server"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var serverURL string
	var beaconURL string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a poolkeeper.toml configuration file in the current directory.

This file stores the oracle's settings: the poolkeeper server, the beacon
node to read balances from, and the public keys of the pool's validators.

EXAMPLES:
  # Create config with default server
  poolkeeper config init

  # Create config for a specific server and beacon node
  poolkeeper config init --server https://pool.example.com --beacon http://localhost:5052

  # Overwrite existing config
  poolkeeper config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(serverURL, beaconURL, force)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "server URL")
	cmd.Flags().StringVar(&beaconURL, "beacon", "http://localhost:5052", "beacon node URL")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows the local project config (poolkeeper.toml), the global config from
~/.poolkeeper/config.yaml and the stored credentials.

EXAMPLES:
  poolkeeper config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigInit(serverURL, beaconURL string, force bool) error {
	configPath := projectConfigFiles[0]

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", name)
		}
	}

	content := fmt.Sprintf(`# poolkeeper oracle configuration

server = %q

[beacon]
endpoint = %q

# Public keys of the pool's validators. Only these are counted in reports.
pubkeys = []

# Devnet timing (mainnet defaults: 32 slots of 12 seconds)
# slots_per_epoch = 32
# seconds_per_slot = 12
`, serverURL, beaconURL)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Server: %s\n", serverURL)
	fmt.Printf("  Beacon: %s\n", beaconURL)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Add your validator pubkeys to %s\n", configPath)
	fmt.Println("  2. Run 'poolkeeper auth login' with an oracle key")
	fmt.Println("  3. Run 'poolkeeper report build -o report.toml' then 'poolkeeper report submit report.toml'")

	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	fmt.Println("1. Command line flags")
	fmt.Println("   --server, --api-key, --config")
	fmt.Println()

	fmt.Println("2. Environment variables")
	if env := os.Getenv("POOLKEEPER_SERVER"); env != "" {
		fmt.Printf("   POOLKEEPER_SERVER=%s\n", env)
	} else {
		fmt.Println("   POOLKEEPER_SERVER=(not set)")
	}
	if env := os.Getenv("POOLKEEPER_API_KEY"); env != "" {
		fmt.Printf("   POOLKEEPER_API_KEY=%s\n", maskAPIKey(env))
	} else {
		fmt.Println("   POOLKEEPER_API_KEY=(not set)")
	}
	fmt.Println()

	fmt.Println("3. Local project config (poolkeeper.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		fmt.Printf("   Loaded from: %s\n", configPath)
		if projectConfig.Server != "" {
			fmt.Printf("   server: %s\n", projectConfig.Server)
		}
		if projectConfig.Beacon.Endpoint != "" {
			fmt.Printf("   beacon.endpoint: %s\n", projectConfig.Beacon.Endpoint)
		}
		fmt.Printf("   beacon.pubkeys: %d configured\n", len(projectConfig.Beacon.Pubkeys))
	}
	fmt.Println()

	fmt.Println("4. Global config (~/.poolkeeper/config.yaml)")
	globalData, err := os.ReadFile(filepath.Join(credentialsDir(), "config.yaml"))
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		var globalConfig ServerConfig
		if err := yaml.Unmarshal(globalData, &globalConfig); err == nil && globalConfig.Server != "" {
			fmt.Printf("   server: %s\n", globalConfig.Server)
		}
	}
	fmt.Println()

	fmt.Println("5. Credentials (~/.poolkeeper/credentials)")
	creds, err := loadCredentials()
	switch {
	case os.IsNotExist(err):
		fmt.Println("   (not found)")
	case err != nil:
		fmt.Printf("   Error: %v\n", err)
	case len(creds.Servers) == 0:
		fmt.Println("   (no credentials stored)")
	default:
		for server, cred := range creds.Servers {
			fmt.Printf("   %s: %s\n", server, maskAPIKey(cred.APIKey))
		}
	}
	fmt.Println()

	fmt.Println("Effective configuration:")
	fmt.Printf("   Server:  %s\n", getServer())
	if key := getAPIKey(); key != "" {
		fmt.Printf("   API Key: %s\n", maskAPIKey(key))
	} else {
		fmt.Println("   API Key: (not set)")
	}

	return nil
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Parse failures are printed as warnings.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		}
		return nil
	}
	return config
}
