package admin

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/copilot/internal/cli"
	"github.com/cloo-solutions/copilot/internal/service"
)

// AskCmd runs one question through the pipeline in-process, bypassing HTTP
// and API keys. Useful for checking document access and retrieval.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question in-process",
		Long: `Run the answering pipeline directly against the database, as the given user.

The answer is audited like an API request.`,
		Example: `  copilotd ask "What is the daily transfer limit?" --role teller --attr branch=riyadh
  copilotd ask "ما هو حد التحويل اليومي؟" --role teller --lang ar --output json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}

	cmd.Flags().StringSliceP("role", "r", nil, "Role name of the asking user (repeatable)")
	cmd.Flags().StringArrayP("attr", "a", nil, "User attribute as key=value (repeatable)")
	cmd.Flags().StringP("lang", "l", "", "Answer language (en or ar)")
	cmd.Flags().IntP("top-k", "k", 0, "Chunks to retrieve (default from COPILOT_DEFAULT_TOP_K)")
	cmd.Flags().String("user", "cli", "User id recorded in the audit trail")
	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	req, err := answerRequestFromFlags(cmd, strings.Join(args, " "))
	if err != nil {
		return err
	}
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := getDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	recorder := service.NewAuditRecorder(1)
	flusher, err := newAuditFlusher(ctx, cfg, pool, recorder)
	if err != nil {
		return err
	}

	answerer, err := newAnswerer(ctx, cfg, pool, recorder)
	if err != nil {
		return err
	}

	res, err := answerer.Answer(ctx, req)
	if err != nil {
		return err
	}

	recorder.Close()
	if err := flusher.ProcessJobs(ctx); err != nil {
		log.Warn().Err(err).Msg("audit flush failed")
	}

	if outputFormat == "json" {
		return cli.PrintJSON(os.Stdout, res.Payload)
	}
	cli.PrintAnswer(os.Stdout, res.Payload, res.TraceID)
	if res.Refused() {
		fmt.Fprintf(os.Stderr, "refusal reason: %s\n", res.RefusalReason)
	}
	return nil
}

func answerRequestFromFlags(cmd *cobra.Command, question string) (service.AnswerRequest, error) {
	roles, _ := cmd.Flags().GetStringSlice("role")
	attrPairs, _ := cmd.Flags().GetStringArray("attr")
	lang, _ := cmd.Flags().GetString("lang")
	userID, _ := cmd.Flags().GetString("user")

	attrs, err := cli.ParseAttributes(attrPairs)
	if err != nil {
		return service.AnswerRequest{}, err
	}

	req := service.AnswerRequest{
		Question: question,
		Language: lang,
		User: service.AnswerUser{
			ID:         userID,
			RoleNames:  roles,
			Attributes: attrs,
		},
	}
	if cmd.Flags().Changed("top-k") {
		topK, _ := cmd.Flags().GetInt("top-k")
		req.TopK = &topK
	}
	return req, nil
}
