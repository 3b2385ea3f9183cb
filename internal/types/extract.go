package types

import (
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// MODEL RESPONSE EXTRACTION UTILITIES
// =============================================================================
//
// Backends return JSON wrapped in markdown fences, prefixed with prose, or
// bare. Payloads decoded into map[string]interface{} carry loosely typed
// values ("0.9" vs 0.9, "yes" vs true). These helpers normalize both.

// CleanJSONResponse strips surrounding whitespace and markdown code fences.
func CleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```JSON")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}

// ExtractJSON returns the first balanced JSON object in response, or "".
// Braces inside string literals are ignored.
func ExtractJSON(response string) string {
	response = CleanJSONResponse(response)
	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}

	return ""
}

// ExtractString extracts a string from a decoded JSON value.
func ExtractString(arg interface{}) string {
	switch v := arg.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ExtractFloat64 extracts a number from a decoded JSON value.
// Numeric strings such as "0.85" are accepted.
func ExtractFloat64(arg interface{}) (float64, bool) {
	switch v := arg.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ExtractBool extracts a boolean from a decoded JSON value.
// Accepts true/false, "true"/"false", "yes"/"no", and 0/1.
func ExtractBool(arg interface{}) (bool, bool) {
	switch v := arg.(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	}
	return false, false
}

// ExtractStrings extracts a string list from a decoded JSON array.
// A single string becomes a one-element list.
func ExtractStrings(arg interface{}) []string {
	switch v := arg.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := ExtractString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []string{s}
		}
	}
	return nil
}
