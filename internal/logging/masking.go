// Package logging provides utilities for secure logging with data masking.
package logging

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveParams are query or form parameters that never reach the log.
var sensitiveParams = map[string]bool{
	"token":    true,
	"password": true,
}

// sensitiveCookies carry credentials: preview tokens and admin sessions.
var sensitiveCookies = map[string]bool{
	"preview_token": true,
	"admin_session": true,
}

// MaskToken shows only the last four characters of a credential.
func MaskToken(value string) string {
	if len(value) < 4 {
		return "****"
	}
	return "****" + value[len(value)-4:]
}

// MaskHeader redacts sensitive header values based on header name.
// Returns the redacted value suitable for logging.
//
// Rules:
// - Password/secret headers: "[REDACTED]" (no partial reveal)
// - Token/API key headers: "****" + last4chars (e.g., "****ab3f")
// - Cookie headers: credential cookies masked, others kept
// - Other headers: returned unchanged
func MaskHeader(name, value string) string {
	lowerName := strings.ToLower(name)

	if strings.Contains(lowerName, "password") ||
		strings.Contains(lowerName, "secret") ||
		strings.Contains(lowerName, "private-key") {
		return redacted
	}

	switch lowerName {
	case "authorization", "accesskey", "x-api-key", "x-access-key":
		return MaskToken(value)
	case "cookie":
		return MaskCookies(value)
	case "set-cookie":
		return MaskSetCookie(value)
	}

	return value
}

// MaskCookies masks credential cookies in a Cookie request header.
func MaskCookies(header string) string {
	cookies, err := http.ParseCookie(header)
	if err != nil {
		return redacted
	}
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		v := c.Value
		if sensitiveCookies[c.Name] {
			v = MaskToken(v)
		}
		parts = append(parts, c.Name+"="+v)
	}
	return strings.Join(parts, "; ")
}

// MaskSetCookie masks the value of a credential cookie in a Set-Cookie header,
// keeping its attributes.
func MaskSetCookie(header string) string {
	name, rest, ok := strings.Cut(header, "=")
	if !ok || !sensitiveCookies[strings.TrimSpace(name)] {
		return header
	}
	value, attrs, _ := strings.Cut(rest, ";")
	if value == "" {
		return header
	}
	masked := name + "=" + MaskToken(value)
	if attrs != "" {
		masked += ";" + attrs
	}
	return masked
}

// MaskQuery redacts credential parameters in a URL query or form body.
// Unparseable input is redacted entirely.
func MaskQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return redacted
	}
	changed := false
	for key, vals := range values {
		if !sensitiveParams[strings.ToLower(key)] {
			continue
		}
		for i := range vals {
			vals[i] = MaskToken(vals[i])
		}
		changed = true
	}
	if !changed {
		return raw
	}
	return values.Encode()
}

// MaskJSONBody redacts non-allowlisted fields in a JSON body.
// Uses an allowlist approach for security.
//
// If allowlist is nil, returns the body unchanged (everything allowed).
// If allowlist is non-nil, only fields in the allowlist are preserved.
// All other fields are replaced with "[REDACTED]".
//
// Returns the masked JSON as bytes, or the original if parsing fails.
func MaskJSONBody(body []byte, allowlist []string) []byte {
	if allowlist == nil || len(body) == 0 {
		return body
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}

	allowed := make(map[string]bool, len(allowlist))
	for _, field := range allowlist {
		allowed[field] = true
	}

	result, err := json.Marshal(maskJSONValue(data, allowed))
	if err != nil {
		return body
	}
	return result
}

// maskJSONValue recursively masks JSON values based on allowlist
func maskJSONValue(value any, allowlist map[string]bool) any {
	switch v := value.(type) {
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, val := range v {
			switch val.(type) {
			case map[string]any, []any:
				result[key] = maskJSONValue(val, allowlist)
			default:
				if allowlist[key] {
					result[key] = val
				} else {
					result[key] = redacted
				}
			}
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = maskJSONValue(item, allowlist)
		}
		return result
	default:
		return value
	}
}

// FormatBinaryData formats binary data for logging.
// Returns a human-readable size indicator.
func FormatBinaryData(data []byte) string {
	return fmt.Sprintf("[BINARY: %d bytes]", len(data))
}
