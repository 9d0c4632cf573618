package validators

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	pkgerrors "github.com/msourial/platefull/pkg/errors"
)

func queryValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func invalidQuery(key, msg string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(details)
}

// ParseQueryInt reads an optional integer query parameter bounded to [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	raw := queryValue(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidQuery(key, "query parameter must be numeric", nil)
	}
	if value < min || value > max {
		return 0, invalidQuery(key, "query parameter out of range", map[string]any{"min": min, "max": max})
	}
	return value, nil
}

// ParseQueryChoice reads an optional parameter that must be one of allowed,
// compared case-insensitively. Missing values return "".
func ParseQueryChoice(r *http.Request, key string, allowed []string) (string, error) {
	raw := strings.ToLower(queryValue(r, key))
	if raw == "" {
		return "", nil
	}
	if !slices.Contains(allowed, raw) {
		return "", invalidQuery(key, "query parameter not recognised", map[string]any{"allowed": allowed})
	}
	return raw, nil
}
