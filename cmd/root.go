package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "rowloom",
	Short: "Rowloom — relation-aware row loading for relational stores",
	Long: `Rowloom maps flat rows onto graphs of related records. A mapping
definition describes which columns become attributes and which hydrate
related entities; rowloom resolves the relations, orders the work and
writes everything through one relational store.`,
}

func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.rowloom/rowloom.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}
