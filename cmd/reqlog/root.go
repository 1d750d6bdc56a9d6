package main

import (
	"github.com/spf13/cobra"

	"reqlog/config"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "reqlog",
		Short: "Log HTTP traffic in both directions with sensitive data masked",
		Long: `reqlog records incoming and outgoing HTTP calls as structured log events.
Request and response payloads pass through named masking rules before they
are written to the console or to a persistent sink.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newMaskCmd(&configPath),
		newVersionCmd(),
	)
	return root
}

// loadConfig reads the config file. The default path may be absent; an
// explicitly given one may not.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	if !cmd.Flags().Changed("config") {
		path = ""
	}
	return config.Load(path)
}
