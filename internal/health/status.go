package health

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// Status is the connectivity state reported by a [Monitor].
type Status string

const (
	// StatusUnknown is the state before the first probe completes.
	StatusUnknown Status = "unknown"

	// StatusUp means the API answered and reports itself healthy.
	StatusUp Status = "up"

	// StatusDegraded means the API answered but reports partial health, or
	// rejected the probe with a 4xx status.
	StatusDegraded Status = "degraded"

	// StatusDown means the API is unreachable or failing.
	StatusDown Status = "down"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Extractor determines a [Status] from a probe response.
type Extractor func(body []byte, statusCode int) Status

// HTTPStatus maps the response code alone: 2xx is up, 4xx is degraded and
// everything else is down.
func HTTPStatus(_ []byte, statusCode int) Status {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusUp
	case statusCode >= 400 && statusCode < 500:
		return StatusDegraded
	default:
		return StatusDown
	}
}

// JSONField returns an [Extractor] reading a status string at a dot-separated
// path of a JSON body, such as "status" or "checks.api". It returns
// [StatusUnknown] when the body is not JSON or the field is missing.
func JSONField(path string) Extractor {
	parts := strings.Split(path, ".")

	return func(body []byte, _ int) Status {
		var data any
		if err := jsoniter.Unmarshal(body, &data); err != nil {
			return StatusUnknown
		}

		value := lookupPath(data, parts)
		if value == "" {
			return StatusUnknown
		}
		return parseStatusWord(strings.ToLower(value))
	}
}

// DefaultExtractor reads a top-level "status" field when the body has one and
// falls back to [HTTPStatus] otherwise. A 5xx answer is always down.
func DefaultExtractor(body []byte, statusCode int) Status {
	if statusCode >= 500 {
		return StatusDown
	}
	if s := JSONField("status")(body, statusCode); s != StatusUnknown {
		return s
	}
	return HTTPStatus(body, statusCode)
}

func lookupPath(data any, parts []string) string {
	current := data
	for _, part := range parts {
		obj, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		if current, ok = obj[part]; !ok {
			return ""
		}
	}

	switch v := current.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// parseStatusWord maps the usual health-check vocabulary, as served by the
// Kubernetes /readyz family and most service health endpoints.
func parseStatusWord(s string) Status {
	switch s {
	case "ok", "healthy", "up", "ready", "pass", "passed", "true", "1", "green", "operational":
		return StatusUp
	case "degraded", "warning", "warn", "partial", "yellow", "amber":
		return StatusDegraded
	default:
		return StatusDown
	}
}
