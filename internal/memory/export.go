package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Export serialises every memory record and tool-call audit row for this
// session to a timestamped Markdown document at path, intended for
// diagnostic inspection, not for re-import.
func (sess *Session) Export(ctx context.Context, path string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Memory export for session %s\n\n", sess.queryID)
	fmt.Fprintf(&sb, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	for _, kind := range []Kind{KindPlan, KindFeedback, KindDiscovery, KindInsight, KindDeadend, KindContext, KindQueryResult} {
		records, err := sess.ByKind(ctx, kind)
		if err != nil {
			return fmt.Errorf("exporting kind %s: %w", kind, err)
		}
		if len(records) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s (%d)\n\n", kind, len(records))
		for _, r := range records {
			fmt.Fprintf(&sb, "- [%d] by %s at %d: %s\n", r.ID, r.CreatedBy, r.CreatedAt, truncate(r.Content, 400))
		}
		sb.WriteString("\n")
	}

	calls, err := sess.toolCallAudit(ctx)
	if err != nil {
		return fmt.Errorf("exporting tool call audit: %w", err)
	}
	if len(calls) > 0 {
		fmt.Fprintf(&sb, "## Tool calls (%d)\n\n", len(calls))
		for _, c := range calls {
			fmt.Fprintf(&sb, "- %s called %s/%s success=%t\n", c.agentRole, c.toolType, c.toolName, c.success)
		}
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing export file: %w", err)
	}
	return nil
}

type toolCallRow struct {
	agentRole string
	toolType  string
	toolName  string
	success   bool
}

func (sess *Session) toolCallAudit(ctx context.Context) ([]toolCallRow, error) {
	rows, err := sess.store.db.Conn().QueryContext(ctx,
		`SELECT agent_role, tool_type, tool_name, success FROM tool_calls WHERE query_id = ? ORDER BY id`, sess.queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []toolCallRow
	for rows.Next() {
		var r toolCallRow
		var successInt int
		if err := rows.Scan(&r.agentRole, &r.toolType, &r.toolName, &successInt); err != nil {
			return nil, err
		}
		r.success = successInt != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
