package postgres

import (
	"context"
	"database/sql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		username      VARCHAR(64)  NOT NULL UNIQUE,
		email         VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ  NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scans (
		id                VARCHAR(64)  PRIMARY KEY,
		user_id           BIGINT       NOT NULL,
		filename          VARCHAR(255) NOT NULL,
		original_filename VARCHAR(255) NOT NULL,
		status            VARCHAR(16)  NOT NULL,
		error_message     VARCHAR(1024),
		critical          INT NOT NULL DEFAULT 0,
		high              INT NOT NULL DEFAULT 0,
		medium            INT NOT NULL DEFAULT 0,
		low               INT NOT NULL DEFAULT 0,
		findings_total    INT NOT NULL DEFAULT 0,
		report_url        VARCHAR(1024),
		source            VARCHAR(16)  NOT NULL,
		created_at        TIMESTAMPTZ  NOT NULL,
		completed_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scans_user_created ON scans (user_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS vulnerabilities (
		id                   BIGSERIAL PRIMARY KEY,
		scan_id              VARCHAR(64)  NOT NULL,
		dependency_name      VARCHAR(512) NOT NULL,
		dependency_version   VARCHAR(128),
		dependency_file      VARCHAR(1024),
		cve_id               VARCHAR(64)  NOT NULL,
		severity             VARCHAR(16)  NOT NULL,
		cvss_v2              DOUBLE PRECISION,
		cvss_v3              DOUBLE PRECISION,
		description          TEXT NOT NULL,
		refs_json            TEXT,
		cwe_ids              TEXT,
		ai_analysis          TEXT,
		ai_is_false_positive BOOLEAN,
		ai_confidence        DOUBLE PRECISION,
		ai_reasoning         TEXT,
		is_suppressed        BOOLEAN NOT NULL DEFAULT FALSE,
		created_at           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vulns_scan ON vulnerabilities (scan_id)`,
	`CREATE TABLE IF NOT EXISTS integrations (
		id            BIGSERIAL PRIMARY KEY,
		user_id       BIGINT       NOT NULL,
		name          VARCHAR(255) NOT NULL,
		type          VARCHAR(16)  NOT NULL,
		config_json   TEXT         NOT NULL,
		webhook_token VARCHAR(64)  NOT NULL UNIQUE,
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    TIMESTAMPTZ  NOT NULL,
		last_used_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_integrations_user ON integrations (user_id)`,
	`CREATE TABLE IF NOT EXISTS scan_analyses (
		id          VARCHAR(64) PRIMARY KEY,
		user_id     BIGINT      NOT NULL,
		scan_id     VARCHAR(64) NOT NULL,
		result_json TEXT        NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_scan ON scan_analyses (scan_id)`,
}

// EnsureSchema creates missing tables; statements are idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
