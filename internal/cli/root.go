// Package cli implements the sudosu terminal client commands.
package cli

import (
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile     string
	mode        string
	projectRoot string
	restricted  bool
	logLevel    string
)

// rootCmd is the base command. Run without arguments it opens the interactive
// chat loop; with arguments it submits them as a single turn and exits.
var rootCmd = &cobra.Command{
	Use:   "sudosu [input]",
	Short: "sudosu - terminal client for remote AI agents",
	Long: `sudosu connects your terminal to remote AI agents. Agents stream their
replies live and may read and write files under the current project root,
subject to your confirmation.

Mention an agent with @name, or just type to talk to the default agent.`,
	Version: version,
	Args:    cobra.ArbitraryArgs,
	RunE:    runChat,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sudosu/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "connection mode: dev or prod (default from config)")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root the agents may access")
	rootCmd.PersistentFlags().BoolVar(&restricted, "restricted", false, "read-only tools; allows unsafe project roots")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}
