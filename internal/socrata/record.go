package socrata

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Str returns the named field as a trimmed string, "" when absent.
// Socrata serializes most numeric columns as strings, so this is the
// primary accessor.
func (r Record) Str(name string) string {
	v, ok := r[name]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// Float returns the named field as a float64, def when absent or unparseable.
func (r Record) Float(name string, def float64) float64 {
	if v, ok := r[name].(float64); ok {
		return v
	}
	s := r.Str(name)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

// Int returns the named field as an int, def when absent or unparseable.
func (r Record) Int(name string, def int) int {
	if v, ok := r[name].(float64); ok {
		return int(v)
	}
	s := r.Str(name)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Socrata sometimes renders integer columns as "123.00".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return def
		}
		return int(f)
	}
	return n
}

// Time parses the named field as a Socrata floating timestamp
// (ISO 8601 without zone), returning the zero time when absent or malformed.
func (r Record) Time(name string) time.Time {
	s := r.Str(name)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Raw serializes the record back to JSON for staging raw-payload columns.
// Marshal of a map[string]any built from JSON cannot fail.
func (r Record) Raw() []byte {
	data, _ := json.Marshal(r)
	return data
}
