package store

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/okorotkov/fleetsync/internal/domain"
)

const (
	reportTablePrefix = "Master_Trade_History_"

	minReportRows    = 100
	reportRowSlack   = 20
	reportColSlack   = 5
	defaultChunkRows = 400
)

// ReportTableName returns the deterministic per-account report table name.
func ReportTableName(login int64) string {
	return fmt.Sprintf("%s%d", reportTablePrefix, login)
}

// ReportPublisher replaces an account's report table wholesale: ensure
// capacity, clear, write the fixed header, then the body in bounded chunks.
// The table is briefly empty mid-publish; the scheduler is the only writer
// per account, so no reader races another writer there.
type ReportPublisher struct {
	api       TableAPI
	chunkRows int
	logger    *zap.Logger
}

// NewReportPublisher creates a publisher writing chunkRows rows per request
// (the default bounds a single request payload to 400 rows).
func NewReportPublisher(api TableAPI, chunkRows int, logger *zap.Logger) *ReportPublisher {
	if chunkRows <= 0 {
		chunkRows = defaultChunkRows
	}
	return &ReportPublisher{api: api, chunkRows: chunkRows, logger: logger}
}

// Publish rewrites the account's report table from the given rows.
func (p *ReportPublisher) Publish(ctx context.Context, login int64, rows []domain.ReportRow) error {
	table := ReportTableName(login)

	needRows := len(rows) + 1 + reportRowSlack
	if needRows < minReportRows {
		needRows = minReportRows
	}
	needCols := len(domain.ReportHeader) + reportColSlack

	if err := p.api.EnsureTable(ctx, table, needRows, needCols); err != nil {
		return errors.Wrapf(err, "ensure report table %s", table)
	}
	if err := p.api.Clear(ctx, table); err != nil {
		return errors.Wrapf(err, "clear report table %s", table)
	}
	if err := p.api.UpdateRange(ctx, table, 1, 1, [][]string{domain.ReportHeader}); err != nil {
		return errors.Wrapf(err, "write report header for %s", table)
	}

	body := make([][]string, 0, len(rows))
	for _, r := range rows {
		body = append(body, r.Cells(login))
	}

	startRow := 2
	for i := 0; i < len(body); i += p.chunkRows {
		end := i + p.chunkRows
		if end > len(body) {
			end = len(body)
		}
		chunk := body[i:end]
		if err := p.api.UpdateRange(ctx, table, startRow, 1, chunk); err != nil {
			return errors.Wrapf(err, "write report rows %d-%d for %s", startRow, startRow+len(chunk)-1, table)
		}
		startRow += len(chunk)
	}

	p.logger.Info("report published",
		zap.Int64("login", login),
		zap.String("table", table),
		zap.Int("rows", len(body)))
	return nil
}
