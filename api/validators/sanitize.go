package validators

import (
	"strings"

	pkgerrors "github.com/angelmondragon/smartbill-sync/pkg/errors"
)

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// PathParam trims a route parameter and rejects empty or oversized values.
func PathParam(name, raw string, maxLen int) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" is required").WithDetails(map[string]string{name: "is required"})
	}
	if maxLen > 0 && len(trimmed) > maxLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" is too long").WithDetails(map[string]string{name: "is invalid"})
	}
	return trimmed, nil
}
