package admin

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/copilot/internal/cli"
	"github.com/cloo-solutions/copilot/internal/jobs"
	"github.com/cloo-solutions/copilot/internal/service"
)

const answerToolName = "answer_question"

var version = "dev"

// MCPCmd serves the pipeline as an MCP tool over stdio. The caller's roles
// are fixed by flags at startup so a connected agent cannot widen its own
// document access.
func MCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the copilot as an MCP tool over stdio",
		Long: `Start a Model Context Protocol server on stdin/stdout exposing the
answer_question tool. Logs go to stderr.`,
		Example: `  copilotd mcp --role teller --attr branch=riyadh`,
		Args:    cobra.NoArgs,
		RunE:    runMCP,
	}

	cmd.Flags().StringSliceP("role", "r", nil, "Role name answers are scoped to (repeatable)")
	cmd.Flags().StringArrayP("attr", "a", nil, "User attribute as key=value (repeatable)")
	cmd.Flags().String("user", "mcp", "User id recorded in the audit trail")

	return cmd
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	base, err := answerRequestFromFlags(cmd, "")
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	recorder := service.NewAuditRecorder(cfg.AuditBuffer)
	flusher, err := newAuditFlusher(ctx, cfg, pool, recorder)
	if err != nil {
		return err
	}
	auditWorker := jobs.NewWorker("audit", flusher, cfg.AuditFlushInterval)
	recorder.OnHighWater(auditWorker.Kick)
	go auditWorker.Start(ctx)

	answerer, err := newAnswerer(ctx, cfg, pool, recorder)
	if err != nil {
		return err
	}

	s := server.NewMCPServer("copilot", version, server.WithToolCapabilities(true))
	s.AddTool(newAnswerTool(), handleAnswer(answerer, base))

	log.Info().Strs("roles", base.User.RoleNames).Msg("mcp server listening on stdio")
	serveErr := server.ServeStdio(s)

	auditWorker.Stop()
	recorder.Close()
	if err := flusher.ProcessJobs(ctx); err != nil {
		log.Warn().Err(err).Msg("final audit flush failed")
	}
	return serveErr
}

func newAnswerTool() mcp.Tool {
	return mcp.NewTool(answerToolName,
		mcp.WithDescription("Answer a question from the bank's approved documents. "+
			"Returns JSON with the answer, confidence, citations, missing_info and safe_next_steps. "+
			"A refusal means the documents do not support an answer."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The question to answer"),
		),
		mcp.WithString("language",
			mcp.Description("Answer language: en or ar (default en)"),
			mcp.Enum("en", "ar"),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Chunks to retrieve, 1 to 20"),
		),
	)
}

// questionAnswerer is the part of service.Answerer the tool needs.
type questionAnswerer interface {
	Answer(ctx context.Context, req service.AnswerRequest) (*service.AnswerResult, error)
}

func handleAnswer(svc questionAnswerer, base service.AnswerRequest) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || question == "" {
			return mcp.NewToolResultError("question parameter is required"), nil
		}

		req := base
		req.Question = question
		req.Language = request.GetString("language", "")
		if topK := request.GetInt("top_k", 0); topK != 0 {
			req.TopK = &topK
		}

		res, err := svc.Answer(ctx, req)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid request: %v", err)), nil
		}

		var buf bytes.Buffer
		if err := cli.PrintJSON(&buf, res.Payload); err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(buf.String()), nil
	}
}
