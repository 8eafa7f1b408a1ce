package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/okorotkov/fleetsync/internal/domain"
	"github.com/okorotkov/fleetsync/pkg/retrier"
)

// Roster column headers. The first three pre-exist; the status trio is
// provisioned by Migrate when absent.
const (
	ColLogin      = "login"
	ColServer     = "server"
	ColPassword   = "password"
	ColStatus     = "status"
	ColLastUpdate = "Last Data Update"
	ColCounter    = "# Successful Logins"
)

// Schema holds the resolved 1-based column indices of the roster. Version is
// bumped when the column set changes.
type Schema struct {
	Version    int
	Login      int
	Server     int
	Password   int
	Status     int
	LastUpdate int
	Counter    int
}

// SchemaVersion is the current roster column layout.
const SchemaVersion = 1

// ErrSchemaNotMigrated is returned when the roster is used before Migrate.
var ErrSchemaNotMigrated = errors.New("roster schema not migrated")

// ErrWriteConfirmMismatch means the service accepted a write but kept
// echoing a different value for the allotted attempts.
var ErrWriteConfirmMismatch = errors.New("confirmed write did not converge")

// Roster reads and mutates the shared account roster. All mutations go
// through confirmed writes: the cell is re-read after writing and the write
// is retried until the echo matches, defending against the service's
// eventually consistent reads.
type Roster struct {
	api    TableAPI
	table  string
	schema Schema
	logger *zap.Logger
}

// NewRoster wraps the roster table. Call Migrate before anything else.
func NewRoster(api TableAPI, table string, logger *zap.Logger) *Roster {
	return &Roster{api: api, table: table, logger: logger}
}

// Schema returns the resolved column layout.
func (r *Roster) Schema() Schema { return r.schema }

// Migrate resolves the typed schema once, appending the status, last-update
// and counter columns when the roster predates them. It replaces the
// original's per-cycle header check with an explicit one-time step.
func (r *Roster) Migrate(ctx context.Context) error {
	header, err := r.api.HeaderRow(ctx, r.table)
	if err != nil {
		return errors.Wrap(err, "read roster header")
	}

	find := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i + 1
			}
		}
		return 0
	}

	for _, required := range []string{ColStatus, ColLastUpdate, ColCounter} {
		if find(required) != 0 {
			continue
		}
		col := len(header) + 1
		if err := r.api.WriteCell(ctx, r.table, 1, col, required); err != nil {
			return errors.Wrapf(err, "provision roster column %q", required)
		}
		header = append(header, required)
		r.logger.Info("provisioned roster column", zap.String("column", required), zap.Int("col", col))
	}

	schema := Schema{
		Version:    SchemaVersion,
		Login:      find(ColLogin),
		Server:     find(ColServer),
		Password:   find(ColPassword),
		Status:     find(ColStatus),
		LastUpdate: find(ColLastUpdate),
		Counter:    find(ColCounter),
	}
	if schema.Login == 0 || schema.Server == 0 || schema.Password == 0 {
		return errors.Errorf("roster is missing base columns: header=%v", header)
	}

	r.schema = schema
	return nil
}

// Snapshot reads the whole roster and folds rows into accounts, grouping
// every row that shares a trimmed (login, server) pair. Rows with a
// malformed login keep Login zero and surface through LoginRaw so the
// scheduler can report them.
func (r *Roster) Snapshot(ctx context.Context) ([]domain.Account, error) {
	if r.schema.Version == 0 {
		return nil, ErrSchemaNotMigrated
	}

	rows, err := r.api.Rows(ctx, r.table)
	if err != nil {
		return nil, errors.Wrap(err, "read roster")
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	cell := func(row []string, col int) string {
		if col <= 0 || col > len(row) {
			return ""
		}
		return strings.TrimSpace(row[col-1])
	}

	byKey := make(map[string]*domain.Account)
	var order []string
	for i, row := range rows[1:] {
		rowIndex := i + 2 // 1-based, header skipped
		loginRaw := cell(row, r.schema.Login)
		server := cell(row, r.schema.Server)
		if loginRaw == "" && server == "" {
			continue
		}

		key := loginRaw + "\x00" + server
		acc, ok := byKey[key]
		if !ok {
			login, convErr := strconv.ParseInt(loginRaw, 10, 64)
			if convErr != nil {
				login = 0
			}
			counter, convErr := strconv.Atoi(cell(row, r.schema.Counter))
			if convErr != nil {
				counter = 0
			}
			acc = &domain.Account{
				Login:        login,
				LoginRaw:     loginRaw,
				Password:     cell(row, r.schema.Password),
				Server:       server,
				Status:       domain.ParseAccountStatus(cell(row, r.schema.Status)),
				LastUpdate:   domain.ParseRosterTime(cell(row, r.schema.LastUpdate)),
				SuccessCount: counter,
			}
			byKey[key] = acc
			order = append(order, key)
		}
		acc.Rows = append(acc.Rows, rowIndex)
	}

	accounts := make([]domain.Account, 0, len(order))
	for _, key := range order {
		accounts = append(accounts, *byKey[key])
	}
	return accounts, nil
}

// FindRows scans the login and server columns and returns every 1-based row
// index whose trimmed values match both, skipping the header.
func (r *Roster) FindRows(ctx context.Context, login int64, server string) ([]int, error) {
	if r.schema.Version == 0 {
		return nil, ErrSchemaNotMigrated
	}

	loginVals, err := r.api.ColValues(ctx, r.table, r.schema.Login)
	if err != nil {
		return nil, errors.Wrap(err, "read login column")
	}
	serverVals, err := r.api.ColValues(ctx, r.table, r.schema.Server)
	if err != nil {
		return nil, errors.Wrap(err, "read server column")
	}

	targetLogin := strconv.FormatInt(login, 10)
	targetServer := strings.TrimSpace(server)

	at := func(vals []string, i int) string {
		if i >= len(vals) {
			return ""
		}
		return strings.TrimSpace(vals[i])
	}

	maxLen := len(loginVals)
	if len(serverVals) > maxLen {
		maxLen = len(serverVals)
	}

	var rows []int
	for i := 1; i < maxLen; i++ { // i=0 is the header
		if at(loginVals, i) == targetLogin && at(serverVals, i) == targetServer {
			rows = append(rows, i+1)
		}
	}
	return rows, nil
}

// WriteConfirmed writes a cell and re-reads it until the echoed value
// matches (trimmed comparison), retrying up to tries times with pause
// between write and read-back. It returns false when no attempt converges.
func (r *Roster) WriteConfirmed(ctx context.Context, row, col int, value string, tries int, pause time.Duration) bool {
	want := strings.TrimSpace(value)

	attempt := 0
	err := retrier.Fixed(tries, pause).Do(ctx, func(ctx context.Context) error {
		attempt++
		if err := r.api.WriteCell(ctx, r.table, row, col, value); err != nil {
			return errors.Wrap(err, "write cell")
		}
		if err := sleep(ctx, pause); err != nil {
			return err
		}
		current, err := r.api.ReadCell(ctx, r.table, row, col)
		if err != nil {
			return errors.Wrap(err, "read back cell")
		}
		if strings.TrimSpace(current) != want {
			r.logger.Warn("write confirm mismatch",
				zap.Int("attempt", attempt),
				zap.Int("row", row),
				zap.Int("col", col),
				zap.String("got", current),
				zap.String("want", value))
			return ErrWriteConfirmMismatch
		}
		return nil
	})
	return err == nil
}

// UpdateAccountStatus writes the status trio to every roster row of the
// account's (login, server) group, each cell confirmed. It reports whether
// every write converged.
func (r *Roster) UpdateAccountStatus(ctx context.Context, rows []int, status domain.AccountStatus, at time.Time, counter int, tries int, pause time.Duration) bool {
	if r.schema.Version == 0 {
		return false
	}

	okAll := true
	for _, row := range rows {
		okAll = r.WriteConfirmed(ctx, row, r.schema.Status, status.String(), tries, pause) && okAll
		okAll = r.WriteConfirmed(ctx, row, r.schema.LastUpdate, at.Format(domain.RosterTimeLayout), tries, pause) && okAll
		okAll = r.WriteConfirmed(ctx, row, r.schema.Counter, strconv.Itoa(counter), tries, pause) && okAll
	}
	return okAll
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
