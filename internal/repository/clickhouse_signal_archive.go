package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

// CHSignalArchive implements SignalArchive for ClickHouse.
type CHSignalArchive struct {
	db    *sql.DB
	table string
}

// NewCHSignalArchive creates the ClickHouse signal archive.
func NewCHSignalArchive(db *sql.DB, table string) *CHSignalArchive {
	return &CHSignalArchive{db: db, table: table}
}

// SignalsSchema returns the DDL of the signal archive table.
func SignalsSchema(table string) string {
	return fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id         UUID,
            symbol     LowCardinality(String),
            side       LowCardinality(String),
            strength   Float64,
            confidence Float64,
            source     LowCardinality(String),
            indicators Map(String, Float64),
            reasoning  String,
            created_at DateTime64(3, 'UTC'),
            expires_at DateTime64(3, 'UTC')
        )
        ENGINE = MergeTree
        PARTITION BY toYYYYMM(created_at)
        ORDER BY (symbol, created_at)
    `, table)
}

func (s *CHSignalArchive) Name() string { return "clickhouse" }

func (s *CHSignalArchive) PublishSignals(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	const chunkSize = 1000
	for start := 0; start < len(signals); start += chunkSize {
		end := min(start+chunkSize, len(signals))
		q, args := insertSignalsQuery(s.table, signals[start:end])
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert signals: %w", err)
		}
	}
	return nil
}

func insertSignalsQuery(table string, signals []models.Signal) (string, []interface{}) {
	values := make([]string, 0, len(signals))
	args := make([]interface{}, 0, len(signals)*10)
	for _, sig := range signals {
		ind := sig.Indicators
		if ind == nil {
			ind = map[string]float64{}
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			sig.ID,
			sig.Symbol,
			string(sig.Side),
			sig.Strength,
			sig.Confidence,
			sig.Source,
			ind,
			sig.Reasoning,
			sig.CreatedAt.UTC(),
			sig.ExpiresAt.UTC(),
		)
	}
	q := fmt.Sprintf("INSERT INTO %s (id, symbol, side, strength, confidence, source, indicators, reasoning, created_at, expires_at) VALUES %s",
		table, strings.Join(values, ","))
	return q, args
}

// querySignalsQuery selects archived signals newest first. An empty symbol
// matches every symbol.
func querySignalsQuery(table, symbol string, from, to time.Time, limit int) (string, []interface{}) {
	var (
		where = []string{"created_at >= ?", "created_at <= ?"}
		args  = []interface{}{from.UTC(), to.UTC()}
	)
	if symbol != "" {
		where = append([]string{"symbol = ?"}, where...)
		args = append([]interface{}{symbol}, args...)
	}
	args = append(args, limit)
	q := fmt.Sprintf(`SELECT toString(id), symbol, side, strength, confidence, source, indicators, reasoning, created_at, expires_at
        FROM %s
        WHERE %s
        ORDER BY created_at DESC
        LIMIT ?`, table, strings.Join(where, " AND "))
	return q, args
}

func (s *CHSignalArchive) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Signal, error) {
	q, args := querySignalsQuery(s.table, symbol, from, to, limit)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []models.Signal
	for rows.Next() {
		var (
			sig  models.Signal
			side string
		)
		if err := rows.Scan(&sig.ID, &sig.Symbol, &side, &sig.Strength, &sig.Confidence, &sig.Source,
			&sig.Indicators, &sig.Reasoning, &sig.CreatedAt, &sig.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		sig.Side = models.Side(side)
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *CHSignalArchive) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *CHSignalArchive) Close() error {
	return nil // connection owned by pkg/clickhouse
}

var _ domrepo.SignalArchive = (*CHSignalArchive)(nil)
