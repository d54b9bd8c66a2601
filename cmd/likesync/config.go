package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"likesync/pkg/auth"
	"likesync/pkg/config"
	"likesync/pkg/ui"
)

var forceInit bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage likesync configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (LIKESYNC_*)
  - .env files (./.env, ~/.likesync.env)
  - Configuration file
  - Default values`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Write an example configuration file with every option.

The file goes to ~/.config/likesync/config.yaml unless --config is given.`,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the merged configuration",
	Long:  `Show the configuration after merging all sources. The bearer token is masked.`,
	RunE:  runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)

	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	if err := config.WriteExample(configPath, forceInit); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the usernames to track and the storage directory")
	fmt.Println("2. Store a bearer token with 'likesync auth login'")
	fmt.Println("3. Run 'likesync config validate', then 'likesync run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	displayCfg := *cfg
	if displayCfg.Twitter.BearerToken != "" {
		displayCfg.Twitter.BearerToken = auth.MaskToken(displayCfg.Twitter.BearerToken)
	}

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	source := configFile
	if source == "" {
		source = config.FindConfigFile()
	}
	if source == "" {
		source = "(none found, defaults in use)"
	}
	fmt.Println()
	ui.PrintInfo("Configuration file", source)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}
	if path == "" {
		return fmt.Errorf("no configuration file found; specify one with --config")
	}

	ui.PrintInfo("Validating configuration", path)

	cfg, err := config.Load(path, nil)
	if err != nil {
		return err
	}

	var warnings []string
	if err := cfg.RequireCredentials(); err != nil {
		warnings = append(warnings, err.Error())
	}
	if info, err := os.Stat(cfg.Storage.Directory); err != nil {
		if !cfg.Storage.CreateDirectory {
			warnings = append(warnings, fmt.Sprintf("storage directory %s does not exist and create_directory is false", cfg.Storage.Directory))
		}
	} else if !info.IsDir() {
		return fmt.Errorf("storage path %s is not a directory", cfg.Storage.Directory)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Tracked users: %v\n", cfg.Twitter.Usernames)
	fmt.Printf("  Poll interval: %s\n", cfg.Twitter.PollInterval)
	fmt.Printf("  Storage directory: %s\n", cfg.Storage.Directory)
	fmt.Printf("  Concurrent downloads: %d\n", cfg.Download.ConcurrentDownloads)
	fmt.Printf("  Rate limit: %d requests/minute\n", cfg.RateLimit.RequestsPerMinute)
	fmt.Printf("  Max retries: %d\n", cfg.RateLimit.MaxRetries)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
