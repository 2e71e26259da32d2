package sqlite

import (
	"context"
	"database/sql"
	"notebook-server/core"

	"github.com/sirupsen/logrus"
)

type saleRow struct {
	date    string
	country string
	product string
	amount  float64
}

var demoSales = []saleRow{
	{"2025-01-01", "US", "A", 120.50},
	{"2025-01-02", "US", "B", 80.00},
	{"2025-01-03", "FR", "A", 75.00},
	{"2025-02-01", "US", "A", 200.00},
	{"2025-02-05", "FR", "B", 150.00},
	{"2025-03-01", "MA", "A", 50.00},
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// readOnly returns a handle on which every write fails. Release must be
// called once the rows are drained.
func (s *documentStore) readOnly(ctx context.Context) (q queryer, release func(), err error) {
	if s.reader != nil {
		return s.reader, func() {}, nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err = conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, func() {
		if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = OFF"); err != nil {
			logrus.WithField("error", err).Error("Failed to restore writable connection")
		}
		conn.Close()
	}, nil
}

// RunQuery executes query on a read-only handle and returns every row keyed
// by column name. Statements that write fail with an error.
func (s *documentStore) RunQuery(ctx context.Context, query string) (*core.QueryResult, error) {
	log := logrus.WithField("query", query)
	log.Debug("Running ad-hoc query")

	q, release, err := s.readOnly(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		log.WithField("error", err).Warn("Query failed")
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &core.QueryResult{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		scan := make([]any, len(columns))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, column := range columns {
			if b, ok := values[i].([]byte); ok {
				row[column] = string(b)
				continue
			}
			row[column] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		log.WithField("error", err).Warn("Query failed")
		return nil, err
	}

	log.WithField("rows", len(result.Rows)).Info("Query executed successfully")
	return result, nil
}

// SeedDemoData resets the sales table to a fixed set of rows.
func (s *documentStore) SeedDemoData(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	salesTable := `CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT,
		country TEXT,
		product TEXT,
		amount REAL
	);`
	if _, err = tx.ExecContext(ctx, salesTable); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM sales"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO sales (date, country, product, amount) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sale := range demoSales {
		if _, err = stmt.ExecContext(ctx, sale.date, sale.country, sale.product, sale.amount); err != nil {
			logrus.WithField("error", err).Error("Failed to seed sales row")
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	logrus.WithField("rows", len(demoSales)).Info("Demo data seeded successfully")
	return nil
}
