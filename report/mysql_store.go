package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"

	"github.com/FeiLiu52/TVT-code/metrics"
)

type MySQLConfig struct {
	Username string
	Password string
	Address  string
	DBName   string
}

// DSN: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8&parseTime=True&loc=Local",
		c.Username, c.Password, c.Address, c.DBName)
}

// ConnectMySQL opens and pings the result database.
func ConnectMySQL(config MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql %s: %w", config.Address, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql %s: %w", config.Address, err)
	}
	log.Infof("MySQL connection to %s/%s initialized", config.Address, config.DBName)
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS selection_records (
		run_id VARCHAR(64) NOT NULL,
		scale VARCHAR(64) NOT NULL,
		run INT NOT NULL,
		sequence INT NOT NULL,
		algorithm VARCHAR(32) NOT NULL,
		selected_node BIGINT NULL,
		end_to_end_delay DOUBLE NULL,
		elapsed_ms DOUBLE NOT NULL,
		expansion_vertex_count INT NULL,
		expansion_edge_count INT NULL,
		expansion_ms DOUBLE NULL,
		outcome VARCHAR(64) NOT NULL,
		graph_memory_mb DOUBLE NULL,
		process_rss_mb DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS selection_summaries (
		run_id VARCHAR(64) NOT NULL,
		scale VARCHAR(64) NOT NULL,
		algorithm VARCHAR(32) NOT NULL,
		invocations INT NOT NULL,
		selected INT NOT NULL,
		success_rate DOUBLE NOT NULL,
		delay_mean DOUBLE NOT NULL,
		delay_variance DOUBLE NOT NULL,
		elapsed_ms_mean DOUBLE NOT NULL,
		vertices_mean DOUBLE NOT NULL,
		edges_mean DOUBLE NOT NULL,
		delay_gap_mean DOUBLE NOT NULL,
		delay_gap_samples INT NOT NULL,
		PRIMARY KEY (run_id, scale, algorithm)
	)`,
}

// EnsureSchema creates the result tables when they do not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error creating result tables: %w", err)
		}
	}
	return nil
}

// InsertRecords stores all records of a run in one transaction.
func InsertRecords(ctx context.Context, db *sql.DB, runID string, records []metrics.Record) error {
	if len(records) == 0 {
		log.Infof("No selection records to insert.")
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO selection_records (
			run_id, scale, run, sequence, algorithm,
			selected_node, end_to_end_delay, elapsed_ms,
			expansion_vertex_count, expansion_edge_count, expansion_ms,
			outcome, graph_memory_mb, process_rss_mb
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("error preparing selection_records insert statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var node sql.NullInt64
		if rec.Node != nil {
			node = sql.NullInt64{Int64: int64(*rec.Node), Valid: true}
		}
		var delay, expansion, graph sql.NullFloat64
		if rec.Delay != nil {
			delay = sql.NullFloat64{Float64: *rec.Delay, Valid: true}
		}
		if rec.ExpansionTime != nil {
			expansion = sql.NullFloat64{Float64: ms(*rec.ExpansionTime), Valid: true}
		}
		if rec.GraphMB != nil {
			graph = sql.NullFloat64{Float64: *rec.GraphMB, Valid: true}
		}
		var vertices, edges sql.NullInt64
		if rec.Vertices != nil {
			vertices = sql.NullInt64{Int64: int64(*rec.Vertices), Valid: true}
			edges = sql.NullInt64{Int64: int64(*rec.Edges), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx,
			runID, rec.Scale, rec.Run, rec.Sequence, rec.Algorithm,
			node, delay, ms(rec.Elapsed),
			vertices, edges, expansion,
			rec.Code(), graph, rec.ProcessRSSMB,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("error inserting record %s/%s #%d: %w", rec.Scale, rec.Algorithm, rec.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing selection records: %w", err)
	}
	log.Infof("Inserted %d selection records for run %s", len(records), runID)
	return nil
}

// InsertSummaries upserts the per-algorithm summaries of a run.
func InsertSummaries(ctx context.Context, db *sql.DB, runID string, summaries []metrics.Summary) error {
	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO selection_summaries (
			run_id, scale, algorithm, invocations, selected, success_rate,
			delay_mean, delay_variance, elapsed_ms_mean, vertices_mean, edges_mean,
			delay_gap_mean, delay_gap_samples
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE invocations = VALUES(invocations), selected = VALUES(selected),
			success_rate = VALUES(success_rate), delay_mean = VALUES(delay_mean),
			delay_variance = VALUES(delay_variance), elapsed_ms_mean = VALUES(elapsed_ms_mean),
			vertices_mean = VALUES(vertices_mean), edges_mean = VALUES(edges_mean),
			delay_gap_mean = VALUES(delay_gap_mean), delay_gap_samples = VALUES(delay_gap_samples)`)
	if err != nil {
		return fmt.Errorf("error preparing selection_summaries insert statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range summaries {
		if _, err := stmt.ExecContext(ctx,
			runID, s.Scale, s.Algorithm, s.Invocations, s.Selected, s.SuccessRate,
			s.Delay.Mean, s.Delay.Variance, s.ElapsedMS.Mean, s.Vertices.Mean, s.Edges.Mean,
			s.DelayGap.Mean, s.DelayGapSamples,
		); err != nil {
			return fmt.Errorf("error inserting summary %s/%s: %w", s.Scale, s.Algorithm, err)
		}
	}
	log.Infof("Inserted %d summaries for run %s", len(summaries), runID)
	return nil
}
