package middleware

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// ValidateUsername checks username format
func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return fmt.Errorf("invalid username format (alphanumeric, dot, dash, underscore, 3-64 chars)")
	}
	return nil
}

// ValidateEmail performs a shallow email format check
func ValidateEmail(email string) error {
	if !emailRe.MatchString(email) || len(email) > 254 {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidateArtifactURL validates webhook artifact URLs (SSRF protection)
func ValidateArtifactURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("artifact URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	blocked := []string{"localhost", "127.0.0.1", "0.0.0.0", "[::]", "::1", "metadata.google.internal", "169.254.169.254"}
	for _, b := range blocked {
		if strings.Contains(host, b) {
			return fmt.Errorf("localhost/internal hosts are not allowed")
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("private IP ranges are not allowed")
		}
	}

	return nil
}

// ValidateScanID validates scan ID format (plain UUID)
func ValidateScanID(scanID string) error {
	pattern := `^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`
	matched, _ := regexp.MatchString(pattern, strings.ToLower(scanID))
	if !matched {
		return fmt.Errorf("invalid scan ID format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 30 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}
