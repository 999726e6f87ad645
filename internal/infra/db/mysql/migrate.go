package mysql

import (
	"context"
	"database/sql"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		username      VARCHAR(64)  NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    DATETIME     NOT NULL,
		UNIQUE KEY uq_users_username (username),
		UNIQUE KEY uq_users_email (email)
	)`,
	`CREATE TABLE IF NOT EXISTS scans (
		id                VARCHAR(64)  PRIMARY KEY,
		user_id           BIGINT       NOT NULL,
		filename          VARCHAR(255) NOT NULL,
		original_filename VARCHAR(255) NOT NULL,
		status            VARCHAR(16)  NOT NULL,
		error_message     VARCHAR(1024) NULL,
		critical          INT NOT NULL DEFAULT 0,
		high              INT NOT NULL DEFAULT 0,
		medium            INT NOT NULL DEFAULT 0,
		low               INT NOT NULL DEFAULT 0,
		findings_total    INT NOT NULL DEFAULT 0,
		report_url        VARCHAR(1024) NULL,
		source            VARCHAR(16)  NOT NULL,
		created_at        DATETIME     NOT NULL,
		completed_at      DATETIME     NULL,
		KEY idx_scans_user_created (user_id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS vulnerabilities (
		id                   BIGINT AUTO_INCREMENT PRIMARY KEY,
		scan_id              VARCHAR(64)  NOT NULL,
		dependency_name      VARCHAR(512) NOT NULL,
		dependency_version   VARCHAR(128) NULL,
		dependency_file      VARCHAR(1024) NULL,
		cve_id               VARCHAR(64)  NOT NULL,
		severity             VARCHAR(16)  NOT NULL,
		cvss_v2              DOUBLE NULL,
		cvss_v3              DOUBLE NULL,
		description          TEXT NOT NULL,
		refs_json            TEXT NULL,
		cwe_ids              TEXT NULL,
		ai_analysis          TEXT NULL,
		ai_is_false_positive BOOLEAN NULL,
		ai_confidence        DOUBLE NULL,
		ai_reasoning         TEXT NULL,
		is_suppressed        BOOLEAN NOT NULL DEFAULT FALSE,
		created_at           DATETIME NOT NULL,
		KEY idx_vulns_scan (scan_id)
	)`,
	`CREATE TABLE IF NOT EXISTS integrations (
		id            BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id       BIGINT       NOT NULL,
		name          VARCHAR(255) NOT NULL,
		type          VARCHAR(16)  NOT NULL,
		config_json   TEXT         NOT NULL,
		webhook_token VARCHAR(64)  NOT NULL,
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    DATETIME     NOT NULL,
		last_used_at  DATETIME     NULL,
		UNIQUE KEY uq_integrations_token (webhook_token),
		KEY idx_integrations_user (user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS scan_analyses (
		id         VARCHAR(64) PRIMARY KEY,
		user_id    BIGINT      NOT NULL,
		scan_id    VARCHAR(64) NOT NULL,
		result_json TEXT       NOT NULL,
		created_at DATETIME    NOT NULL,
		KEY idx_analyses_scan (scan_id)
	)`,
}

// EnsureSchema creates missing tables. Statements are idempotent so startup
// can run this unconditionally.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
