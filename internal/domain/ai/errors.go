package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrNotConfigured indicates no AI API key is configured.
var ErrNotConfigured = errors.New("ai analysis not configured")
