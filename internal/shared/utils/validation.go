package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// JSON size limits (in bytes)
const (
	MaxRequestSize  = 256 * 1024       // 256KB - single transaction request
	MaxKeystoreSize = 64 * 1024        // 64KB - wallet file
	MaxManifestSize = 64 * 1024        // 64KB - mini-app manifest
	MaxScriptSize   = 4 * 1024 * 1024  // 4MB - single page script
	MaxAssetSize    = 16 * 1024 * 1024 // 16MB - any file served from an app dir
)

// String length limits
const (
	MaxIDLength       = 128
	MaxPasswordLength = 1024
)

// SafeIDPattern allows alphanumeric, hyphens, underscores and dots
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	// Check for null bytes (security issue)
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateID validates an app or blockchain identifier. Ids become path
// segments and origin host labels, so "." and ".." are rejected outright.
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}

	if id == "" {
		return nil
	}
	if !SafeIDPattern.MatchString(id) || strings.Trim(id, ".") == "" {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, dots, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}
