package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func askCmd(g *globalFlags) *cobra.Command {
	var (
		sessionID string
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Run one agent turn and print the answer",
		Example: `  squadagent ask "Which NFL team represented the AFC at Super Bowl 50?"
  squadagent ask -s my-session -v "And the NFC?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.build(ctx, true)
			if err != nil {
				return err
			}
			if err := a.Start(); err != nil {
				return err
			}
			defer a.Stop()

			out := cmd.OutOrStdout()
			printer := eventPrinter{w: cmd.ErrOrStderr(), verbose: verbose}
			res, err := a.Runner.Turn(ctx, sessionID, strings.Join(args, " "), printer.emit)
			if err != nil {
				return err
			}
			if res.Created {
				fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("session: "+res.SessionID))
			}
			fmt.Fprintln(out, renderAnswer(res.Result))
			if res.Result.Answer == nil {
				return fmt.Errorf("no answer: %s", res.Result.StopReason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "resume this session instead of starting a new one")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every step to stderr")
	return cmd
}
