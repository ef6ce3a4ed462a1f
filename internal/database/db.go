package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to MySQL and verifies the connection.
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the event journal and read model tables if they do
// not exist yet. The journal orders events globally through the
// AUTO_INCREMENT global_offset and per aggregate through the (aggregate_id,
// seq) unique key.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			global_offset BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			aggregate_id  VARCHAR(36)  NOT NULL,
			seq           BIGINT       NOT NULL,
			event_type    VARCHAR(64)  NOT NULL,
			payload       JSON         NOT NULL,
			tag           VARCHAR(64)  NOT NULL,
			occurred_at   DATETIME(6)  NOT NULL,
			PRIMARY KEY (global_offset),
			UNIQUE KEY uq_events_aggregate_seq (aggregate_id, seq),
			KEY idx_events_tag_offset (tag, global_offset)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS show_views (
			show_id         VARCHAR(36)     NOT NULL,
			available_seats INT             NOT NULL,
			last_offset     BIGINT UNSIGNED NOT NULL,
			PRIMARY KEY (show_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS projection_offsets (
			projection_name VARCHAR(128)    NOT NULL,
			current_offset  BIGINT UNSIGNED NOT NULL,
			PRIMARY KEY (projection_name)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
