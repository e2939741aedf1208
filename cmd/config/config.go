// Package config prints or writes the effective configuration
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tenemo/bob/internal/conf"
)

// Command creates the config command
func Command(settings *conf.Settings) *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  "Print the configuration after defaults, config file and BOB_* environment overrides are applied. The MQTT password is redacted unless --write is used.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if writePath != "" {
				if err := conf.SaveYAMLConfig(writePath, settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", writePath)
				return nil
			}
			data, err := settings.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVarP(&writePath, "write", "w", "", "Write the configuration to this file instead of printing it")
	return cmd
}
