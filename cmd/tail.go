package cmd

import (
	"fmt"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

func newTailCommand() *cobra.Command {
	var (
		lf     *launchFlags
		follow bool
	)

	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the session log of a uid",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := lf.resolveLaunch()
			if err != nil {
				return err
			}
			if err := requireUID(cfg, cmd.ErrOrStderr()); err != nil {
				return err
			}

			t, err := tail.TailFile(cfg.SessionLogFile(), tail.Config{
				Follow:    follow,
				ReOpen:    follow,
				MustExist: true,
				Logger:    tail.DiscardingLogger,
			})
			if err != nil {
				return fmt.Errorf("opening session log: %w", err)
			}
			defer t.Cleanup()
			defer t.Stop()

			out := cmd.OutOrStdout()
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case line, ok := <-t.Lines:
					if !ok {
						return t.Wait()
					}
					if line.Err != nil {
						return line.Err
					}
					fmt.Fprintln(out, line.Text)
				}
			}
		},
	}

	lf = bindLaunchFlags(tailCmd)
	tailCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing lines as the run appends them")
	return tailCmd
}
