package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/ordersync-backend/internal/application/sync"
)

// PrintHeader prints the command header
func PrintHeader(w io.Writer, accountID int64) {
	scope := "all connected accounts"
	if accountID > 0 {
		scope = fmt.Sprintf("account %d", accountID)
	}
	fmt.Fprintf(w, "ordersync: syncing %s\n\n", scope)
}

// PrintSyncSummary prints one account's sync result
func PrintSyncSummary(w io.Writer, result *sync.SyncResult) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Account %d: Fetched=%d Imported=%d AutoProcessed=%d Errors=%d\n",
		result.AccountID,
		result.Fetched,
		result.Imported,
		result.AutoProcessed,
		len(result.Errors))

	if result.Warning != "" {
		fmt.Fprintf(w, "Warning: %s\n", result.Warning)
	}
	if result.AwaitingItems > 0 {
		fmt.Fprintf(w, "Awaiting items: %d eligible orders not deducted yet\n", result.AwaitingItems)
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  - %s\n", err)
		}
	}
}

// PrintAllSummary prints every account of a multi-account pass and
// returns how many accounts failed.
func PrintAllSummary(w io.Writer, results []sync.AccountResult) int {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
			fmt.Fprintln(w, strings.Repeat("-", 60))
			fmt.Fprintf(w, "Account %d (%s): FAILED: %s\n", r.AccountID, r.Name, r.Error)
			continue
		}
		if r.Result != nil {
			PrintSyncSummary(w, r.Result)
		}
	}

	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Accounts=%d Failed=%d\n", len(results), failed)
	return failed
}
