// mikrotik-router polls a RouterOS device over its binary API, keeps an
// entity model of interfaces, clients, DHCP, NAT, system and traffic data,
// and serves it over HTTP and websocket.
//
// Usage:
//
//	mikrotik-router serve [--config file]   Run the poller and HTTP API
//	mikrotik-router once [--config file]    Run one cycle and print the model
//	mikrotik-router version                 Print the version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "mikrotik-router",
	Short:             "RouterOS API poller and entity model",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "YAML config file (environment overrides it)")

	rootCmd.AddCommand(
		newServeCmd(),
		newOnceCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
