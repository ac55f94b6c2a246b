package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidemetrics/adrecon/internal/bus"
	"github.com/tidemetrics/adrecon/internal/metrics"
	"github.com/tidemetrics/adrecon/internal/models"
	"github.com/tidemetrics/adrecon/internal/storage"
	"go.uber.org/zap"
)

// ErrEmptyImport is returned when a CSV body contains no data rows.
var ErrEmptyImport = errors.New("import contains no data rows")

// RowError describes one rejected CSV row. Row numbers are 1-based and
// include the header.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Result summarizes one import batch.
type Result struct {
	BatchID  string     `json:"batch_id"`
	Accepted int        `json:"accepted"`
	Rejected []RowError `json:"rejected,omitempty"`
}

// Importer is the validated ingestion boundary. Rows are strongly typed
// before they reach the engine; invalid rows are rejected with their row
// number and never stored.
type Importer struct {
	spend   storage.SpendStore
	finance storage.FinanceStore
	archive storage.SpendArchive // optional
	bus     *bus.Bus             // optional
	metrics *metrics.Metrics     // optional
	logger  *zap.Logger
}

// NewImporter creates an importer. archive, b and m may be nil.
func NewImporter(spend storage.SpendStore, finance storage.FinanceStore, archive storage.SpendArchive, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *Importer {
	return &Importer{spend: spend, finance: finance, archive: archive, bus: b, metrics: m, logger: logger}
}

// ImportSpendCSV reads the minimal spend contract
// date,campaign_name,amount_spent,leads[,impressions,clicks] and appends
// the accepted rows for the given user scope.
func (im *Importer) ImportSpendCSV(ctx context.Context, userScope string, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 4 {
		return nil, fmt.Errorf("expected at least 4 columns, got %d", len(header))
	}

	batchID := uuid.NewString()
	now := time.Now().UTC()
	result := &Result{BatchID: batchID}

	var accepted []models.SpendRecord
	row := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Row: row, Reason: "malformed CSV row"})
			im.countReject("spend", "malformed")
			continue
		}

		rec, reason := parseSpendRow(fields)
		if reason != "" {
			result.Rejected = append(result.Rejected, RowError{Row: row, Reason: reason})
			im.countReject("spend", reason)
			continue
		}

		rec.ID = uuid.NewString()
		rec.UserScope = userScope
		rec.ImportBatchID = batchID
		rec.CreatedAt = now
		accepted = append(accepted, rec)
	}

	if len(accepted) == 0 && len(result.Rejected) == 0 {
		return nil, ErrEmptyImport
	}

	if len(accepted) > 0 {
		if err := im.spend.SaveBatch(ctx, accepted); err != nil {
			return nil, fmt.Errorf("failed to store spend batch: %w", err)
		}
		result.Accepted = len(accepted)

		if im.archive != nil {
			if err := im.archive.ArchiveSpend(ctx, batchID, accepted); err != nil {
				im.logger.Warn("spend archive write failed", zap.Error(err), zap.String("batch_id", batchID))
			}
		}
		if im.metrics != nil {
			im.metrics.ImportedRows.WithLabelValues("spend").Add(float64(len(accepted)))
		}
		if im.bus != nil {
			im.bus.Publish(bus.Event{Type: bus.EventSpendImport})
		}
	}

	im.logger.Info("spend import finished",
		zap.String("batch_id", batchID),
		zap.Int("accepted", result.Accepted),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// ImportFinanceCSV reads date,amount_received_usd,amount_received_local
// rows for the monthly-average rate computation.
func (im *Importer) ImportFinanceCSV(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	batchID := uuid.NewString()
	result := &Result{BatchID: batchID}

	var accepted []models.FinanceRecord
	row := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil || len(fields) < 3 {
			result.Rejected = append(result.Rejected, RowError{Row: row, Reason: "malformed CSV row"})
			im.countReject("finance", "malformed")
			continue
		}

		date, err := parseDate(fields[0])
		if err != nil {
			result.Rejected = append(result.Rejected, RowError{Row: row, Reason: "invalid date"})
			im.countReject("finance", "invalid_date")
			continue
		}
		usd, err1 := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		local, err2 := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err1 != nil || err2 != nil || usd < 0 || local < 0 {
			result.Rejected = append(result.Rejected, RowError{Row: row, Reason: "invalid amount"})
			im.countReject("finance", "invalid_amount")
			continue
		}

		accepted = append(accepted, models.FinanceRecord{
			Date:          date,
			AmountUSD:     usd,
			AmountLocal:   local,
			ImportBatchID: batchID,
		})
	}

	if len(accepted) == 0 && len(result.Rejected) == 0 {
		return nil, ErrEmptyImport
	}

	if len(accepted) > 0 {
		if err := im.finance.SaveBatch(ctx, accepted); err != nil {
			return nil, fmt.Errorf("failed to store finance batch: %w", err)
		}
		result.Accepted = len(accepted)

		if im.metrics != nil {
			im.metrics.ImportedRows.WithLabelValues("finance").Add(float64(len(accepted)))
		}
		if im.bus != nil {
			im.bus.Publish(bus.Event{Type: bus.EventRateChange})
		}
	}

	return result, nil
}

func parseSpendRow(fields []string) (models.SpendRecord, string) {
	var rec models.SpendRecord

	if len(fields) < 4 {
		return rec, "expected at least 4 fields"
	}

	date, err := parseDate(fields[0])
	if err != nil {
		return rec, "invalid date"
	}

	label := strings.TrimSpace(fields[1])
	if label == "" {
		return rec, "missing campaign name"
	}

	amount, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
	if err != nil || amount < 0 {
		return rec, "invalid amount"
	}

	leads, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil || leads < 0 {
		return rec, "invalid leads"
	}

	rec = models.SpendRecord{
		Date:          date,
		CampaignLabel: label,
		AmountNative:  amount,
		Leads:         leads,
	}

	if len(fields) > 4 {
		if v, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64); err == nil && v >= 0 {
			rec.Impressions = v
		}
	}
	if len(fields) > 5 {
		if v, err := strconv.ParseInt(strings.TrimSpace(fields[5]), 10, 64); err == nil && v >= 0 {
			rec.Clicks = v
		}
	}

	return rec, ""
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "02/01/2006", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func (im *Importer) countReject(feed, reason string) {
	if im.metrics != nil {
		im.metrics.RejectedRows.WithLabelValues(feed, reason).Inc()
	}
}
