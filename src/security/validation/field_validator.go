// backend/src/security/validation/field_validator.go
package validation

import (
	"errors"
	"fmt"
	"strings"
)

var ErrValidationFailed = errors.New("validation failed")

// ValidateStringNotEmpty fails when the trimmed value is empty.
func ValidateStringNotEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength fails when the value exceeds maxLen runes.
func ValidateStringMaxLength(value string, maxLen int, fieldName string) error {
	if len([]rune(value)) > maxLen {
		return fmt.Errorf("%w: %s must be at most %d characters", ErrValidationFailed, fieldName, maxLen)
	}
	return nil
}
