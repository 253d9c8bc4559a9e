package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
)

// Actor identifies the authenticated subject of a request, omitted from the
// canonical content for unauthenticated routes (spec.md §4.4).
type Actor struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// Content is the scope of what an idempotency key binds: the request route,
// the command payload, and (for authenticated routes) the actor.
type Content struct {
	Path  string
	Body  json.RawMessage
	Actor *Actor
}

// ContentHash returns SHA-256 of the canonical JSON encoding of content, hex
// encoded. Canonical encoding pins key ordering (alphabetical, recursively)
// and number formatting (no trailing zeros, no exponent notation) so the
// same logical content always hashes identically regardless of which JSON
// encoder produced the wire bytes.
func ContentHash(content Content) (string, error) {
	canon, err := canonicalize(content)
	if err != nil {
		return "", fmt.Errorf("idempotency: canonicalize content: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalize(content Content) ([]byte, error) {
	var body any
	if len(content.Body) > 0 {
		dec := json.NewDecoder(bytes.NewReader(content.Body))
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("decode body: %w", err)
		}
	}

	fields := map[string]any{
		"path": content.Path,
		"body": body,
	}
	if content.Actor != nil {
		fields["actor"] = map[string]any{
			"userId": content.Actor.UserID,
			"role":   content.Actor.Role,
		}
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, fields); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case string:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(normalizeNumber(val.String()))
	default:
		return fmt.Errorf("idempotency: unsupported canonical value type %T", v)
	}
	return nil
}

// normalizeNumber pins a JSON number's textual form: integers have no
// trailing ".0", and the rational value is preserved exactly via big.Rat so
// "1.50" and "1.5" canonicalize identically.
func normalizeNumber(s string) string {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return s
	}
	if r.IsInt() {
		return r.Num().String()
	}
	return r.FloatString(ratDecimalPlaces(r))
}

// ratDecimalPlaces returns the smallest number of decimal places (at most
// 20) at which FloatString reproduces r exactly, so the formatted value
// carries no trailing zeros.
func ratDecimalPlaces(r *big.Rat) int {
	const maxPlaces = 20
	for places := 1; places <= maxPlaces; places++ {
		s := r.FloatString(places)
		if back, ok := new(big.Rat).SetString(s); ok && back.Cmp(r) == 0 {
			return places
		}
	}
	return maxPlaces
}
