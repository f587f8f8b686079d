package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rowloom/rowloom/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View, validate, and initialize the rowloom configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fmt.Println(titleStyle.Render("Current configuration"))
		fmt.Println()
		fmt.Printf("  Store:\n")
		fmt.Printf("    Type:           %s\n", cfg.Store.Type)
		fmt.Printf("    Host:           %s\n", cfg.Store.Host)
		fmt.Printf("    Port:           %d\n", cfg.Store.Port)
		fmt.Printf("    Database:       %s\n", cfg.Store.Database)
		fmt.Printf("    Schema:         %s\n", cfg.Store.Schema)
		fmt.Printf("    Username:       %s\n", cfg.Store.Username)
		fmt.Printf("    Password:       %s\n", maskSecret(cfg.Store.Password))
		fmt.Printf("    Max Conns:      %d\n", cfg.Store.MaxConnections)
		fmt.Println()
		fmt.Printf("  Logging:\n")
		fmt.Printf("    Level:          %s\n", cfg.Logging.Level)
		fmt.Printf("    Directory:      %s\n", cfg.Logging.Directory)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			fmt.Println(errStyle.Render("Config is invalid: " + err.Error()))
			return err
		}
		fmt.Println(successStyle.Render("Config is valid"))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			Version: config.CurrentVersion,
			Store: config.StoreConfig{
				Type:     "postgres",
				Host:     "localhost",
				Port:     5432,
				Database: "mydb",
				Schema:   "public",
				Username: "loader",
				Password: "${ENV:ROWLOOM_DB_PASSWORD}",
			},
		}
		if err := cfg.Save(cfgFile); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		path := cfgFile
		if path == "" {
			path = config.ExpandHome(config.DefaultPath)
		}
		fmt.Println(successStyle.Render("Config written to " + path))
		return nil
	},
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
