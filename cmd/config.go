package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand() *cobra.Command {
	var lf *launchFlags

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Prints the configuration a run would use as YAML. When the uid names an
existing job its oConfig overrides are applied. Credentials are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolveLaunch()
			if err != nil {
				return err
			}
			if cfg.UID != "" && jobExists(cfg) {
				if _, cfg, err = loadJob(cfg); err != nil {
					return err
				}
			}

			out, err := cfg.Redacted().YAML()
			if err != nil {
				return fmt.Errorf("rendering configuration: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	lf = bindLaunchFlags(configCmd)
	return configCmd
}
