package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokenpool/core"
	"github.com/goliatone/go-tokenpool/transport"
)

const maxLoggedBodyBytes = 512

// Exchanger performs one form POST against a backend and decodes its JSON
// object response. Error statuses become hard upstream errors after the body
// is logged; undecodable 2xx bodies become protocol errors.
type Exchanger struct {
	Backend string
	Client  *transport.Client
	Logger  core.Logger
	Now     func() time.Time
}

func NewExchanger(backend string, client *transport.Client, logger core.Logger, now func() time.Time) *Exchanger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Exchanger{
		Backend: backend,
		Client:  client,
		Logger:  glog.Ensure(logger),
		Now:     now,
	}
}

func (e *Exchanger) Operation(name string) string {
	return e.Backend + "." + name
}

func (e *Exchanger) Post(ctx context.Context, req transport.Request) (Payload, error) {
	if e == nil || e.Client == nil {
		return nil, core.NewConfigurationError("providers: backend client is not configured")
	}
	res, err := e.Client.PostForm(ctx, req)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		body := truncateBody(res.Body)
		e.Logger.Error("upstream error response",
			"operation", req.Operation,
			"status_code", res.StatusCode,
			"body", body,
		)
		return nil, core.NewHardUpstreamError(req.Operation, res.StatusCode, body)
	}
	payload, err := DecodePayload(res.Body)
	if err != nil {
		e.Logger.Error("upstream response is not a json object",
			"operation", req.Operation,
			"body", truncateBody(res.Body),
		)
		return nil, core.NewProtocolError(req.Operation, "json object body")
	}
	return payload, nil
}

// Payload is a decoded JSON object with path accessors.
type Payload map[string]any

func DecodePayload(body []byte) (Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var decoded map[string]any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, err
	}
	if decoded == nil {
		return nil, fmt.Errorf("payload is not an object")
	}
	return Payload(decoded), nil
}

func (p Payload) lookup(path ...string) any {
	var current any = map[string]any(p)
	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = object[key]
	}
	return current
}

func (p Payload) String(path ...string) string {
	return readAnyString(p.lookup(path...))
}

// Int64 returns the numeric value at path and whether one was present.
func (p Payload) Int64(path ...string) (int64, bool) {
	return readAnyInt64(p.lookup(path...))
}

// Missing lists the dotted paths whose string value is empty.
func (p Payload) Missing(paths ...[]string) []string {
	missing := make([]string, 0)
	for _, path := range paths {
		if p.String(path...) == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}
	return missing
}

// Field is shorthand for building a Missing path.
func Field(path ...string) []string {
	return path
}

// ParseISOExpiry parses backend timestamps such as 2024-04-09T09:43:51.862Z
// and returns them in UTC. Values without a zone are read as UTC.
func ParseISOExpiry(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05.999999999", value, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case map[string]any, []any:
		return ""
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case float64:
		return int64(typed), true
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed, true
		}
		if floatParsed, err := typed.Float64(); err == nil {
			return int64(floatParsed), true
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func truncateBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) <= maxLoggedBodyBytes {
		return trimmed
	}
	cut := maxLoggedBodyBytes
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut] + "..."
}
