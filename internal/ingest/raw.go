package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"unicode"

	"fintrack/internal/core"
)

var ErrNotObject = errors.New("capture is not a JSON object")

// Raw is a best-effort capture as produced by the extraction service or a
// client. Every field may be missing, null or of the wrong JSON type.
type Raw struct {
	Amount      json.RawMessage `json:"amount"`
	Kind        LooseString     `json:"type"`
	Category    LooseString     `json:"category"`
	Place       LooseString     `json:"place"`
	Description LooseString     `json:"description"`
	Date        LooseString     `json:"date"`
	Items       []Item          `json:"items"`
}

// DecodeRaw decodes a JSON object into a Raw. Only a body that is not an
// object at all is an error; field-level problems are left to Normalize.
func DecodeRaw(data []byte) (Raw, error) {
	var raw Raw
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return raw, ErrNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return raw, ErrNotObject
	}
	raw.Amount = fields["amount"]
	if v, ok := fields["total"]; ok && len(raw.Amount) == 0 {
		raw.Amount = v
	}
	decodeLoose(fields, "type", &raw.Kind)
	decodeLoose(fields, "category", &raw.Category)
	decodeLoose(fields, "place", &raw.Place)
	if raw.Place == "" {
		decodeLoose(fields, "merchant", &raw.Place)
	}
	decodeLoose(fields, "description", &raw.Description)
	decodeLoose(fields, "date", &raw.Date)
	if v, ok := fields["items"]; ok {
		// A malformed items list is dropped rather than failing the capture.
		var items []Item
		if err := json.Unmarshal(v, &items); err == nil {
			raw.Items = items
		}
	}
	return raw, nil
}

func decodeLoose(fields map[string]json.RawMessage, key string, dst *LooseString) {
	if v, ok := fields[key]; ok {
		_ = dst.UnmarshalJSON(v)
	}
}

// LooseString accepts a JSON string, number or boolean; anything else is empty.
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*s = ""
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err == nil {
			*s = LooseString(strings.TrimSpace(v))
		}
	case '{', '[', 'n':
	default:
		*s = LooseString(data)
	}
	return nil
}

// Item is one line of a receipt. The extraction service returns either plain
// strings or objects with a name.
type Item struct {
	Name string
}

func (it *Item) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	it.Name = ""
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return nil
		}
		it.Name = strings.TrimSpace(v)
	case '{':
		var v struct {
			Name        LooseString `json:"name"`
			Item        LooseString `json:"item"`
			Description LooseString `json:"description"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil
		}
		for _, candidate := range []LooseString{v.Name, v.Item, v.Description} {
			if candidate != "" {
				it.Name = string(candidate)
				break
			}
		}
	}
	return nil
}

func (it Item) MarshalJSON() ([]byte, error) {
	return json.Marshal(it.Name)
}

// parseAmount reads a JSON number or a numeric string such as "€ 12,50" or
// "1,234.56". The second result is false when no amount could be read.
func parseAmount(data json.RawMessage) (int64, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return 0, false
	}
	if data[0] == '-' || (data[0] >= '0' && data[0] <= '9') {
		return parseNumber(string(data))
	}
	if data[0] != '"' {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return 0, false
	}
	return parseAmountString(s)
}

// parseNumber reads a plain decimal or an exponent form. The dot is always
// the decimal mark here.
func parseNumber(s string) (int64, bool) {
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		m, err := core.FromUnits(f)
		if err != nil {
			return 0, false
		}
		return m.Cents, true
	}
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return 0, false
	}
	return cents, true
}

func parseAmountString(s string) (int64, bool) {
	s = strings.TrimFunc(strings.TrimSpace(s), func(r rune) bool {
		return !unicode.IsDigit(r) && r != '-' && r != '+' && r != '.' && r != ','
	})
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	if strings.ContainsAny(s, "eE") {
		return parseNumber(s)
	}
	return parseNumber(stripGrouping(s))
}

// stripGrouping removes thousands separators and leaves at most one decimal
// mark. With both separators present the later one is the decimal mark. A
// lone separator that repeats, or that is followed by exactly three digits,
// groups thousands.
func stripGrouping(s string) string {
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if dot > comma {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
	case dot < 0 && comma < 0:
		return s
	}
	sep, last := ".", dot
	if comma >= 0 {
		sep, last = ",", comma
	}
	if strings.Count(s, sep) > 1 || len(s)-last-1 == 3 {
		return strings.ReplaceAll(s, sep, "")
	}
	return strings.Replace(s, sep, ".", 1)
}
