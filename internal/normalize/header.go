package normalize

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// EncodeHeader serializes h in the stored header form: a JSON object of
// canonical names to arrays of values, keys sorted. Repeated headers such as
// Set-Cookie keep one entry per line. No headers encode to nil.
func EncodeHeader(h http.Header) ([]byte, error) {
	if len(h) == 0 {
		return nil, nil
	}
	lines := make(map[string][]string, len(h))
	for name, values := range h {
		key := http.CanonicalHeaderKey(name)
		lines[key] = append(lines[key], values...)
	}
	out, err := encodeJSON(lines)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}
	return out, nil
}

// DecodeHeader parses the stored header form back into an http.Header.
// A string value is read as a single header line.
func DecodeHeader(data []byte) (http.Header, error) {
	h := http.Header{}
	if len(data) == 0 {
		return h, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode headers: invalid JSON")
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return nil, fmt.Errorf("decode headers: expected an object")
	}
	parsed.ForEach(func(key, value gjson.Result) bool {
		if !value.IsArray() {
			h.Add(key.String(), value.String())
			return true
		}
		value.ForEach(func(_, line gjson.Result) bool {
			h.Add(key.String(), line.String())
			return true
		})
		return true
	})
	return h, nil
}
