package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kurisu/squadagent/internal/bot"
	"github.com/kurisu/squadagent/internal/runner"
)

// asker runs one non-streaming agent turn.
type asker interface {
	Ask(ctx context.Context, id, text string) (runner.Outcome, error)
}

func mcpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the agent as MCP tools over stdio",
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

			s := newMCPServer(a.Runner, a.Bots)
			stdio := server.NewStdioServer(s)
			stdio.SetErrorLogger(slog.NewLogLogger(a.Logger.Handler(), slog.LevelError))
			a.Logger.Info("mcp server listening on stdio")
			err = stdio.Listen(ctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// newMCPServer exposes an "ask" tool backed by the agent and, when bots
// are available, a "bot" tool.
func newMCPServer(r asker, bots *bot.Set) *server.MCPServer {
	s := server.NewMCPServer("squadagent", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("ask",
		mcp.WithDescription("Answer a question with the code-acting agent. Pass session_id from a previous answer to continue that conversation."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question or task")),
		mcp.WithString("session_id", mcp.Description("Session to resume")),
	), askHandler(r))

	if bots != nil {
		s.AddTool(mcp.NewTool("bot",
			mcp.WithDescription("Ask a retrieval bot over the SQuAD index."),
			mcp.WithString("name", mcp.Required(), mcp.Enum(bots.Names()...), mcp.Description("Bot name")),
			mcp.WithString("text", mcp.Required(), mcp.Description("Question for the bot")),
			mcp.WithString("session_id", mcp.Description("Conversation key for chat bots")),
		), botHandler(bots))
	}
	return s
}

func askHandler(r asker) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := r.Ask(ctx, req.GetString("session_id", ""), question)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		res := mcp.NewToolResultText(answerText(out.Result))
		res.IsError = out.Result.Answer == nil
		res.Content = append(res.Content, mcp.NewTextContent("session_id: "+out.SessionID))
		return res, nil
	}
}

func botHandler(bots *bot.Set) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		b, err := bots.Get(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		answer, err := bot.Ask(ctx, b, req.GetString("session_id", "mcp"), text)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(answer), nil
	}
}
