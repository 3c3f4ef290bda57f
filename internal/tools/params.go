package tools

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Limit bounds for list-style tools.
const (
	DefaultLimit = 5
	MinLimit     = 1
	MaxLimit     = 20
)

// Args are decoded tool arguments. Values keep their JSON types
// (float64, string, bool, nil, maps, slices).
type Args map[string]any

// DecodeArgs turns a raw arguments payload into Args. A JSON string is
// decoded a second time; anything that is not an object becomes empty.
func DecodeArgs(raw json.RawMessage) Args {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Args{}
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return Args{}
		}
		raw = []byte(inner)
	}
	var args Args
	if err := json.Unmarshal(raw, &args); err != nil || args == nil {
		return Args{}
	}
	return args
}

// Has reports whether key is present with a non-null value.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Number reads key as a number. Numeric strings are accepted; absent,
// null, empty and non-numeric values report ok=false.
func (a Args) Number(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// NumberOr reads key as a number, falling back to def.
func (a Args) NumberOr(key string, def float64) float64 {
	if n, ok := a.Number(key); ok {
		return n
	}
	return def
}

// Limit reads key as a list limit clamped to [MinLimit, MaxLimit].
// Unusable values yield def, which is clamped too.
func (a Args) Limit(key string, def int) int {
	n := float64(def)
	if v, ok := a.Number(key); ok {
		n = math.Floor(v)
	}
	return int(math.Min(math.Max(n, MinLimit), MaxLimit))
}

// String reads key as trimmed text.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Bool reads key as a flag. Zero, empty, "false" and "0" are false.
func (a Args) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s != "" && s != "false" && s != "0"
	case nil:
		return false
	}
	return true
}

// UnknownParams returns the keys of args not in known, sorted.
func UnknownParams(args Args, known []string) []string {
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	var unknown []string
	for k := range args {
		if !set[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}
