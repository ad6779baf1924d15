package util

import (
	"encoding/hex"
	"fmt"
	"net"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// ValidateRequired checks if a string value is not empty
func ValidateRequired(value, fieldName string) error {
	if value == "" {
		return ValidationError{Field: fieldName, Message: "cannot be empty"}
	}
	return nil
}

// ValidateEndpoint checks that endpoint is host:port and returns the host
// without brackets.
func ValidateEndpoint(endpoint, fieldName string) (string, error) {
	if err := ValidateRequired(endpoint, fieldName); err != nil {
		return "", err
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", ValidationError{Field: fieldName, Message: "invalid host:port format"}
	}
	if host == "" {
		return "", ValidationError{Field: fieldName, Message: "host cannot be empty"}
	}
	if port == "" {
		return "", ValidationError{Field: fieldName, Message: "port cannot be empty"}
	}
	return host, nil
}

// DecodeHexField decodes value and checks it is exactly size bytes long.
func DecodeHexField(value string, size int, fieldName string) ([]byte, error) {
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, ValidationError{Field: fieldName, Message: "not hex encoded"}
	}
	if len(b) != size {
		return nil, ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("length %d, want %d bytes", len(b), size),
		}
	}
	return b, nil
}
