package storage

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/tidemetrics/adrecon/internal/models"
)

// ClickHouseSpendArchive implements SpendArchive with batch inserts into a
// ClickHouse table. The archive feeds ad-hoc analysis only; the engine
// never reads it back.
type ClickHouseSpendArchive struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSpendArchive creates an archive writing to the given table.
func NewClickHouseSpendArchive(conn driver.Conn, table string) *ClickHouseSpendArchive {
	if table == "" {
		table = "spend_rows"
	}
	return &ClickHouseSpendArchive{conn: conn, table: table}
}

func (a *ClickHouseSpendArchive) ArchiveSpend(ctx context.Context, batchID string, records []models.SpendRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, user_scope, date, campaign_label, account_label,
			amount_native, leads, impressions, clicks, import_batch_id
		)`, a.table))
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	for _, r := range records {
		if err := batch.Append(
			r.ID, r.UserScope, r.Date, r.CampaignLabel, r.AccountLabel,
			r.AmountNative, r.Leads, r.Impressions, r.Clicks, batchID,
		); err != nil {
			return fmt.Errorf("failed to append archive row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}
	return nil
}
