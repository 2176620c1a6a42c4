package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"wallet-x-search/internal/storage"
)

// Show prints recently stored verdicts.
func (a *App) Show(ctx context.Context, opts ShowOptions, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if err := requireStore(store, "show verdicts"); err != nil {
		return err
	}
	defer closeStore()

	records, err := store.ListRecentVerdicts(ctx, opts.Limit)
	if err != nil {
		return err
	}
	writeVerdictTable(out, records)
	return nil
}

func writeVerdictTable(out io.Writer, records []storage.VerdictRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "no verdicts found")
		return
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Updated (UTC)\tWallet\tPost\tHandle\tConfidence\tError")

	for _, rec := range records {
		handle := rec.Handle
		if handle == "" {
			handle = "-"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%t\t%s\t%s\t%s\n",
			rec.UpdatedAt.UTC().Format(time.RFC3339),
			rec.Wallet,
			rec.PostExists,
			handle,
			rec.Confidence,
			sanitizeInline(rec.Error),
		)
	}

	writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
