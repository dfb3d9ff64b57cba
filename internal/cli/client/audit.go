package client

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/copilot/internal/cli"
	"github.com/cloo-solutions/copilot/internal/domain"
)

// AuditCmd creates the audit command. The key must carry an audit role.
func AuditCmd() *cobra.Command {
	var params AuditParams

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List answered questions",
		Long:  "Lists the audit trail newest first. Requires an API key with an audit role.",
		Example: `  copilot audit --limit 20
  copilot audit --user u-123 --cursor <cursor from previous page>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientFromEnv(cmd)
			if err != nil {
				return err
			}
			return runAudit(cmd.Context(), api, params, cmd.OutOrStdout(), outputJSON(cmd))
		},
	}

	cmd.Flags().IntVarP(&params.Limit, "limit", "n", domain.DefaultAuditLimit, "Maximum number of records")
	cmd.Flags().StringVar(&params.UserID, "user", "", "Only records for this user id")
	cmd.Flags().StringVar(&params.Cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runAudit(ctx context.Context, api *APIClient, params AuditParams, out io.Writer, asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	page, err := api.ListAudit(ctx, params)
	if err != nil {
		return fmt.Errorf("audit listing failed: %w", err)
	}

	if asJSON {
		return cli.PrintJSON(out, page)
	}

	if len(page.Items) == 0 {
		fmt.Fprintln(out, "No audit records found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tUSER\tCONFIDENCE\tOUTCOME\tLATENCY\tQUERY")
	for _, r := range page.Items {
		outcome := "answered"
		if r.Refused() {
			outcome = "refused: " + r.RefusalReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime),
			orDash(r.UserID),
			r.Confidence,
			outcome,
			r.LatencyMS,
			truncate(r.Query, 60),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if page.HasMore && page.Cursor != "" {
		fmt.Fprintf(out, "\n%s\n", strings.Repeat("-", 40))
		fmt.Fprintf(out, "More records available. Use --cursor %s\n", page.Cursor)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
