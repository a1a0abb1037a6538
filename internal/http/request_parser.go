package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/ingest"
)

// errBadRequest marks a request that cannot be parsed at all.
var errBadRequest = errors.New("bad request")

const maxBodyBytes = 1 << 20

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields as trimmed strings.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	err      error
	parsed   bool
}

func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", errBadRequest, p.err)
		return p.err
	}
	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}
	if body[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
		}
		return p.err
	}
	p.formData, p.err = url.ParseQuery(body)
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", errBadRequest, p.err)
	}
	return p.err
}

func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if v, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(v))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// ManualForm maps the body onto a manual entry. "type" is accepted as an
// alias of "kind" and "walletId" of "wallet".
func (p *RequestBodyParser) ManualForm() ingest.ManualForm {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := p.Get(k); v != "" {
				return v
			}
		}
		return ""
	}
	return ingest.ManualForm{
		Amount:      p.Get("amount"),
		Kind:        first("kind", "type"),
		Category:    p.Get("category"),
		Place:       p.Get("place"),
		Description: p.Get("description"),
		Date:        first("date", "transactionDate"),
		WalletID:    first("walletId", "wallet"),
	}
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims and drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s))
}

// queryInt reads a positive integer query parameter; absent means 0.
func queryInt(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errBadRequest, key)
	}
	return n, nil
}

// queryOrder reads "asc" or "desc"; absent means ascending. It reports
// whether the order is descending.
func queryOrder(q url.Values, key string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(q.Get(key))) {
	case "", "asc":
		return false, nil
	case "desc":
		return true, nil
	}
	return false, fmt.Errorf("%w: %s must be asc or desc", errBadRequest, key)
}

// queryDate reads a YYYY-MM-DD (or RFC 3339) query parameter.
func queryDate(q url.Values, key string) (time.Time, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be a date (YYYY-MM-DD)", errBadRequest, key)
	}
	return t, nil
}
