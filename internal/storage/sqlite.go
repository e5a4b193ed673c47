package storage

import (
	"database/sql"
	"time"

	"eo-trader/pkg/types"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// SQLiteDB persists closed coarse candles and issued signals so trend
// context and signal history survive a restart. Raw tick history is not
// persisted.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens (or creates) the database at dbPath.
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	return &SQLiteDB{db: db}, nil
}

func createTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		asset TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		bucket_start DATETIME NOT NULL,
		open TEXT NOT NULL,
		high TEXT NOT NULL,
		low TEXT NOT NULL,
		close TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(asset, timeframe, bucket_start)
	);
	CREATE INDEX IF NOT EXISTS idx_candles_asset_tf_time ON candles(asset, timeframe, bucket_start);

	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		asset TEXT NOT NULL,
		direction TEXT NOT NULL,
		price TEXT NOT NULL,
		issued_at DATETIME NOT NULL,
		trend TEXT NOT NULL,
		wick_kind TEXT NOT NULL,
		wick_ratio REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_signals_asset_time ON signals(asset, issued_at);

	CREATE TABLE IF NOT EXISTS results (
		signal_id TEXT PRIMARY KEY,
		asset TEXT NOT NULL,
		direction TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		exit_price TEXT NOT NULL,
		issued_at DATETIME NOT NULL,
		resolved_at DATETIME NOT NULL,
		won BOOLEAN NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_asset_time ON results(asset, resolved_at);
	`

	_, err := db.Exec(query)
	return err
}

// SaveCandle persists one closed candle.
func (s *SQLiteDB) SaveCandle(candle types.Candle) error {
	query := `
	INSERT OR REPLACE INTO candles (asset, timeframe, bucket_start, open, high, low, close)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		candle.Asset,
		string(candle.Timeframe),
		candle.BucketStart.UTC().Format(time.RFC3339),
		candle.Open.String(),
		candle.High.String(),
		candle.Low.String(),
		candle.Close.String(),
	)
	return err
}

// SaveSignal persists one issued signal.
func (s *SQLiteDB) SaveSignal(signal types.TradeSignal) error {
	query := `
	INSERT OR REPLACE INTO signals (id, asset, direction, price, issued_at, trend, wick_kind, wick_ratio)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		signal.ID,
		signal.Asset,
		string(signal.Direction),
		signal.Price.String(),
		signal.IssuedAt.UTC().Format(time.RFC3339),
		string(signal.Basis.Trend),
		string(signal.Basis.Wick.Kind),
		signal.Basis.Wick.Ratio,
	)
	return err
}

// SaveResult persists one tracked signal outcome.
func (s *SQLiteDB) SaveResult(result types.SignalResult) error {
	query := `
	INSERT OR REPLACE INTO results (signal_id, asset, direction, entry_price, exit_price, issued_at, resolved_at, won)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		result.SignalID,
		result.Asset,
		string(result.Direction),
		result.EntryPrice.String(),
		result.ExitPrice.String(),
		result.IssuedAt.UTC().Format(time.RFC3339),
		result.ResolvedAt.UTC().Format(time.RFC3339),
		result.Won,
	)
	return err
}

// GetRecentCandles returns candles for an asset and timeframe newer than
// the given age, oldest first.
func (s *SQLiteDB) GetRecentCandles(asset string, tf types.Timeframe, maxAge time.Duration) ([]types.Candle, error) {
	query := `
	SELECT asset, timeframe, bucket_start, open, high, low, close
	FROM candles
	WHERE asset = ? AND timeframe = ? AND bucket_start >= ?
	ORDER BY bucket_start ASC
	`

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	rows, err := s.db.Query(query, asset, string(tf), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Candle
	for rows.Next() {
		var candle types.Candle
		var tfStr, bucketStr, open, high, low, close_ string

		if err := rows.Scan(&candle.Asset, &tfStr, &bucketStr, &open, &high, &low, &close_); err != nil {
			return nil, err
		}

		candle.Timeframe = types.Timeframe(tfStr)
		candle.Closed = true
		if candle.BucketStart, err = time.Parse(time.RFC3339, bucketStr); err != nil {
			return nil, err
		}
		if candle.Open, err = decimal.NewFromString(open); err != nil {
			return nil, err
		}
		if candle.High, err = decimal.NewFromString(high); err != nil {
			return nil, err
		}
		if candle.Low, err = decimal.NewFromString(low); err != nil {
			return nil, err
		}
		if candle.Close, err = decimal.NewFromString(close_); err != nil {
			return nil, err
		}

		out = append(out, candle)
	}

	return out, rows.Err()
}

// Cleanup drops rows older than the retention window.
func (s *SQLiteDB) Cleanup(keepHours int) error {
	cutoff := time.Now().Add(-time.Duration(keepHours) * time.Hour).UTC().Format(time.RFC3339)

	if _, err := s.db.Exec(`DELETE FROM candles WHERE bucket_start < ?`, cutoff); err != nil {
		return err
	}
	if _, err := s.db.Exec(`DELETE FROM signals WHERE issued_at < ?`, cutoff); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM results WHERE resolved_at < ?`, cutoff)
	return err
}

// Close closes the underlying database.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
