package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kurisu/squadagent/internal/bot"
	"github.com/kurisu/squadagent/pkg/app"
)

// promptLine reads one line of input with a huh text field.
func promptLine(title string) (string, error) {
	var value string
	inp := huh.NewInput().Title(title).Prompt("> ").Value(&value)
	if err := huh.NewForm(huh.NewGroup(inp)).Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func chatCmd(g *globalFlags) *cobra.Command {
	var (
		sessionID string
		botName   string
		verbose   bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent, or with a bot, interactively",
		Long: `Chat with the agent in an interactive loop. Each line is one turn of
the same session. Type "/new" to start a new session and "exit" to quit.

With --bot the lines go to a retrieval bot instead of the agent.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := g.build(ctx, true)
			if err != nil {
				return err
			}
			if err := a.Start(); err != nil {
				return err
			}
			defer a.Stop()

			turn := agentTurn(a, &sessionID, eventPrinter{w: cmd.ErrOrStderr(), verbose: verbose})
			label := "agent (" + a.Provider.ModelName() + ")"
			if botName != "" {
				if a.Bots == nil {
					return errors.New("bots need store.sqlite to be configured")
				}
				b, err := a.Bots.Get(botName)
				if err != nil {
					return err
				}
				turn = botTurn(b, &sessionID)
				label = "bot " + b.Name()
			}
			return chatLoop(ctx, cmd.OutOrStdout(), label, &sessionID, turn)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "resume this session")
	cmd.Flags().StringVarP(&botName, "bot", "b", "", "talk to this bot instead of the agent")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every step to stderr")
	return cmd
}

// turnFunc answers one line of user input.
type turnFunc func(ctx context.Context, text string) (string, error)

func chatLoop(ctx context.Context, out io.Writer, label string, sessionID *string, turn turnFunc) error {
	fmt.Fprintln(out, titleStyle.Render("squadagent chat")+mutedStyle.Render(" with "+label))
	fmt.Fprintln(out, mutedStyle.Render(`"/new" starts a new session, "exit" quits`))

	for {
		input, err := promptLine("You")
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/new":
			*sessionID = ""
			fmt.Fprintln(out, mutedStyle.Render("new session"))
			continue
		}

		fmt.Fprintln(out, mutedStyle.Render("you: ")+input)
		answer, err := turn(ctx, input)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
			continue
		}
		fmt.Fprintln(out, answer)
		fmt.Fprintln(out)
	}
}

func agentTurn(a *app.App, sessionID *string, printer eventPrinter) turnFunc {
	return func(ctx context.Context, text string) (string, error) {
		res, err := a.Runner.Turn(ctx, *sessionID, text, printer.emit)
		if err != nil {
			return "", err
		}
		if res.Created {
			*sessionID = res.SessionID
		}
		return renderAnswer(res.Result), nil
	}
}

func botTurn(b bot.Bot, sessionID *string) turnFunc {
	return func(ctx context.Context, text string) (string, error) {
		if *sessionID == "" {
			*sessionID = uuid.NewString()
		}
		answer, err := bot.Ask(ctx, b, *sessionID, text)
		if err != nil {
			return "", err
		}
		return answerStyle.Render(answer), nil
	}
}
