// Package bbl canonicalizes New York City borough/block/lot triples into
// the 10-character BBL identifier used as the cross-source join key.
package bbl

import (
	"strings"
)

// boroughCodes maps every accepted borough token (numeric string,
// two-letter code, or full name) to its 1-digit code.
var boroughCodes = map[string]string{
	"1": "1", "2": "2", "3": "3", "4": "4", "5": "5",
	"MN": "1", "BX": "2", "BK": "3", "QN": "4", "SI": "5",
	"MANHATTAN": "1", "BRONX": "2", "BROOKLYN": "3", "QUEENS": "4", "STATEN ISLAND": "5",
}

var boroughNames = map[string]string{
	"1": "Manhattan",
	"2": "Bronx",
	"3": "Brooklyn",
	"4": "Queens",
	"5": "Staten Island",
}

var countyNames = map[string]string{
	"1": "New York",
	"2": "Bronx",
	"3": "Kings",
	"4": "Queens",
	"5": "Richmond",
}

// Create builds a 10-character BBL from a borough token, block, and lot.
// Unresolvable input degrades to a best-effort identifier rather than
// erroring: an unknown borough token falls back to its raw value padded
// to one character, or "0" when empty.
func Create(borough, block, lot string) string {
	return boroughCode(borough) + pad(block, 5) + pad(lot, 4)
}

// boroughCode resolves a borough token to its 1-digit code.
func boroughCode(token string) string {
	key := strings.ToUpper(strings.TrimSpace(token))
	if code, ok := boroughCodes[key]; ok {
		return code
	}
	return pad(key, 1)
}

// pad left-pads s with zeros to width. Input already at or beyond the
// field width passes through unchanged (best-effort identifier).
func pad(s string, width int) string {
	s = strings.TrimSpace(s)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

// Valid reports whether s looks like a well-formed BBL: 10 digits with
// a borough code between 1 and 5.
func Valid(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s[0] >= '1' && s[0] <= '5'
}

// BoroughName returns the borough name for a 1-digit borough code,
// or "" when the code is unknown.
func BoroughName(code string) string {
	return boroughNames[code]
}

// CountyName returns the county name for a 1-digit borough code,
// or "" when the code is unknown.
func CountyName(code string) string {
	return countyNames[code]
}

// Borough extracts the 1-digit borough code from a BBL.
func Borough(s string) string {
	if len(s) != 10 {
		return ""
	}
	return s[:1]
}
