// Package history stores daily closing prices and turns them into aligned
// return series for the analytics engine.
package history

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/database"
)

// DailyPrice represents one closing price observation
type DailyPrice struct {
	Date  string  `json:"date"` // ISO date, e.g. 2024-03-28
	Close float64 `json:"close"`
}

// Repository provides access to historical price data
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates the price repository and ensures its schema exists
func NewRepository(db *database.DB, log zerolog.Logger) (*Repository, error) {
	repo := &Repository{
		db:  db,
		log: log.With().Str("component", "history_repo").Logger(),
	}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *Repository) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS daily_prices (
			symbol      TEXT NOT NULL,
			date        TEXT NOT NULL,
			close_price REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		);
		CREATE INDEX IF NOT EXISTS idx_daily_prices_symbol ON daily_prices(symbol);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create daily_prices schema: %w", err)
	}
	return nil
}

// SaveDailyPrices upserts a batch of closing prices for a symbol
func (r *Repository) SaveDailyPrices(symbol string, prices []DailyPrice) error {
	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO daily_prices (symbol, date, close_price)
			VALUES (?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET close_price = excluded.close_price
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare price insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if _, err := stmt.Exec(symbol, p.Date, p.Close); err != nil {
				return fmt.Errorf("failed to insert price %s %s: %w", symbol, p.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Str("symbol", symbol).Int("count", len(prices)).Msg("Prices stored")
	return nil
}

// GetDailyPrices fetches daily prices for a symbol in ascending date order.
// A limit of 0 returns everything.
func (r *Repository) GetDailyPrices(symbol string, limit int) ([]DailyPrice, error) {
	query := `
		SELECT date, close_price
		FROM daily_prices
		WHERE symbol = ?
		ORDER BY date ASC
	`
	args := []interface{}{symbol}
	if limit > 0 {
		// Take the most recent N rows, then flip back to ascending.
		query = `
			SELECT date, close_price FROM (
				SELECT date, close_price
				FROM daily_prices
				WHERE symbol = ?
				ORDER BY date DESC
				LIMIT ?
			) ORDER BY date ASC
		`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// Symbols lists every symbol with stored prices
func (r *Repository) Symbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT symbol FROM daily_prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbols: %w", err)
	}

	return symbols, nil
}

// CountPrices returns the number of stored observations for a symbol
func (r *Repository) CountPrices(symbol string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM daily_prices WHERE symbol = ?`, symbol).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count prices for %s: %w", symbol, err)
	}
	return count, nil
}
