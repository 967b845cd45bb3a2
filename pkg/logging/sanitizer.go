package logging

import (
	"regexp"
)

const (
	// MaxFieldLogLength is the maximum length of a field value to log
	MaxFieldLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match potential passwords in connection strings
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Pattern to match SSN-shaped values (123-45-6789 or 9 bare digits in an
	// ssn-ish key=value pair)
	ssnPattern = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)

	// Pattern to match US phone-shaped values
	phonePattern = regexp.MustCompile(`\b(\+1[\s.-]?)?\(?\d{3}\)?[\s.-]\d{3}[\s.-]\d{4}\b`)

	// Field names whose values must never be logged. Loan fields are
	// borrower PII; answers flow through these keys.
	piiFieldPattern = regexp.MustCompile(`(?i)^(ssn|social_security.*|.*tax_id.*|date_of_birth|dob|first_name|last_name|borrower_name|email|phone.*|.*account_number.*)$`)
)

// SanitizeConnectionString removes credentials from connection strings
// before they are logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError scrubs error messages that might carry credentials or
// borrower data picked up from query parameters.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = ssnPattern.ReplaceAllString(sanitized, RedactedText)
	return phonePattern.ReplaceAllString(sanitized, RedactedText)
}

// IsPIIField reports whether a loan field name must have its value redacted
// from structured logs.
func IsPIIField(name string) bool {
	return piiFieldPattern.MatchString(name)
}

// SanitizeFieldValue returns a loggable rendition of a loan field value:
// redacted entirely for PII field names, otherwise truncated and scrubbed of
// SSN- and phone-shaped substrings.
func SanitizeFieldValue(name, value string) string {
	if IsPIIField(name) {
		return RedactedText
	}
	sanitized := ssnPattern.ReplaceAllString(value, RedactedText)
	sanitized = phonePattern.ReplaceAllString(sanitized, RedactedText)
	return TruncateString(sanitized, MaxFieldLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
