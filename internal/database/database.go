package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

// NewConnection opens a MySQL pool and verifies it with a ping.
func NewConnection(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewRedisConnection parses a redis:// URL and verifies the server responds.
func NewRedisConnection(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id VARCHAR(128) NOT NULL PRIMARY KEY,
		balance INT NOT NULL DEFAULT 0,
		last_refill_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		CHECK (balance >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS word_purchases (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		challenge_id VARCHAR(64) NOT NULL,
		word_index INT NOT NULL,
		user_id VARCHAR(128) NOT NULL,
		purchased_at DATETIME NOT NULL,
		UNIQUE KEY uq_word_purchase (challenge_id, word_index),
		KEY idx_word_purchases_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS prize_payouts (
		challenge_id VARCHAR(64) NOT NULL PRIMARY KEY,
		user_id VARCHAR(128) NOT NULL,
		amount INT NOT NULL,
		paid_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

// Migrate creates the tables used by the credit ledger, purchase log and
// prize payouts.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
