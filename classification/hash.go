package classification

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Hasher derives a result hash from a record.
//
// The canonical form lists attributes sorted by name, one per line, as
// quoted name, '=' and a type-tagged value:
//
//	s:"text"   strings
//	n:7.5      numbers of any Go kind; integers exactly, integral floats
//	           as integers, other floats in shortest form
//	b:true     booleans
//	z:         nil
//
// so attribute order never affects the hash while 7 and "7" stay distinct.
type Hasher struct {
	fields map[string]bool
}

// NewHasher creates a hasher. When fields is non-empty only those attributes
// contribute to the hash.
func NewHasher(fields []string) *Hasher {
	h := &Hasher{}
	if len(fields) > 0 {
		h.fields = make(map[string]bool, len(fields))
		for _, f := range fields {
			h.fields[f] = true
		}
	}
	return h
}

// HashOf returns the hex SHA-256 of the record's canonical form.
func (h *Hasher) HashOf(rec Record) string {
	sum := sha256.Sum256([]byte(h.Canonical(rec)))
	return hex.EncodeToString(sum[:])
}

// Canonical returns the canonical form the hash is computed over.
func (h *Hasher) Canonical(rec Record) string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		if h != nil && h.fields != nil && !h.fields[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		v, ok := canonicalValue(rec[k])
		if !ok {
			// validated records never get here
			v = "x:" + strconv.Quote(fmt.Sprintf("%v", rec[k]))
		}
		b.WriteString(v)
		b.WriteByte('\n')
	}
	return b.String()
}

func canonicalValue(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "z:", true
	case string:
		return "s:" + strconv.Quote(v), true
	case bool:
		return "b:" + strconv.FormatBool(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return "n:" + strconv.FormatInt(i, 10), true
		}
		if u, err := strconv.ParseUint(string(v), 10, 64); err == nil {
			return "n:" + strconv.FormatUint(u, 10), true
		}
		f, err := v.Float64()
		if err != nil {
			return "", false
		}
		return "n:" + formatFloat(f), true
	case float64:
		return "n:" + formatFloat(v), true
	case float32:
		return "n:" + formatFloat(float64(v)), true
	case int:
		return "n:" + strconv.FormatInt(int64(v), 10), true
	case int8:
		return "n:" + strconv.FormatInt(int64(v), 10), true
	case int16:
		return "n:" + strconv.FormatInt(int64(v), 10), true
	case int32:
		return "n:" + strconv.FormatInt(int64(v), 10), true
	case int64:
		return "n:" + strconv.FormatInt(v, 10), true
	case uint:
		return "n:" + strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return "n:" + strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return "n:" + strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return "n:" + strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return "n:" + strconv.FormatUint(v, 10), true
	}
	return "", false
}

// formatFloat writes integral values in the integer range as integers, so
// 7.0 and 7 agree, and everything else in shortest float form.
func formatFloat(f float64) string {
	switch {
	case f != math.Trunc(f) || math.IsInf(f, 0):
		return strconv.FormatFloat(f, 'g', -1, 64)
	case f >= -(1<<63) && f < 1<<63:
		// -0 becomes 0
		return strconv.FormatInt(int64(f), 10)
	case f >= 0 && f < 1<<64:
		return strconv.FormatUint(uint64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
