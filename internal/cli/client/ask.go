package client

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/copilot/internal/cli"
	"github.com/cloo-solutions/copilot/internal/domain"
)

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		roles    []string
		attrs    []string
		lang     string
		topK     int
		userID   string
		previous []string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question",
		Long: `Asks the copilot a question. Answers come only from approved documents the
given roles may read, with citations. Unsupported questions get a refusal.`,
		Example: `  copilot ask "What is the daily transfer limit?" --role teller
  copilot ask "ما هو حد التحويل اليومي؟" --role teller --lang ar --output`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes, err := cli.ParseAttributes(attrs)
			if err != nil {
				return err
			}
			history, err := parseHistory(previous)
			if err != nil {
				return err
			}

			req := AskRequest{
				Question: strings.Join(args, " "),
				Language: lang,
				User: AskUser{
					ID:         userID,
					RoleNames:  roles,
					Attributes: attributes,
				},
				History: history,
			}
			if cmd.Flags().Changed("top-k") {
				req.TopK = &topK
			}
			if err := applyAskDefaults(cmd, &req); err != nil {
				return err
			}

			api, err := NewAPIClientFromEnv(cmd)
			if err != nil {
				return err
			}
			return runAsk(cmd.Context(), api, req, cmd.OutOrStdout(), outputJSON(cmd))
		},
	}

	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "Role name of the asking user (repeatable)")
	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "User attribute as key=value (repeatable)")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Answer language (en or ar)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Chunks to retrieve (server default when unset)")
	cmd.Flags().StringVar(&userID, "user", "", "User id recorded in the audit trail")
	cmd.Flags().StringArrayVar(&previous, "history", nil, "Prior turn as user:text or assistant:text (repeatable, oldest first)")

	return cmd
}

// applyAskDefaults fills user, roles and language from config.json when
// their flags were not given.
func applyAskDefaults(cmd *cobra.Command, req *AskRequest) error {
	cfg, err := LoadGlobalConfig()
	if err != nil || cfg == nil {
		return err
	}
	if !cmd.Flags().Changed("user") && cfg.User != "" {
		req.User.ID = cfg.User
	}
	if !cmd.Flags().Changed("role") && len(cfg.Roles) > 0 {
		req.User.RoleNames = cfg.Roles
	}
	if !cmd.Flags().Changed("lang") && cfg.Language != "" {
		req.Language = cfg.Language
	}
	return nil
}

func runAsk(ctx context.Context, api *APIClient, req AskRequest, out io.Writer, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := api.Ask(ctx, req)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}

	if asJSON {
		return cli.PrintJSON(out, res.Payload)
	}

	cli.PrintAnswer(out, res.Payload, res.TraceID)
	if len(res.RetrievedChunkIDs) > 0 {
		fmt.Fprintf(out, "Retrieved: %s\n", strings.Join(res.RetrievedChunkIDs, ", "))
	}
	return nil
}

func parseHistory(turns []string) ([]domain.HistoryTurn, error) {
	history := make([]domain.HistoryTurn, 0, len(turns))
	for _, turn := range turns {
		role, text, ok := strings.Cut(turn, ":")
		r := domain.HistoryRole(strings.TrimSpace(role))
		if !ok || (r != domain.HistoryRoleUser && r != domain.HistoryRoleAssistant) {
			return nil, fmt.Errorf("invalid history turn %q (expected user:text or assistant:text)", turn)
		}
		history = append(history, domain.HistoryTurn{Role: r, Text: strings.TrimSpace(text)})
	}
	return history, nil
}
