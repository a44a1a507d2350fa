package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"liquidation-zone-alerts/internal/cooldown"
)

// Cleanup purges alert history older than the configured retention window.
func (a *App) Cleanup(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot clean up")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := cooldown.UTCDay(time.Now()).AddDate(0, 0, -a.Config.Retention.AlertHistoryDays)
	deleted, err := store.CleanupOldAlerts(ctx, cutoff)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "deleted %d alert(s) older than %s\n", deleted, cutoff.Format(time.DateOnly))
	return nil
}
