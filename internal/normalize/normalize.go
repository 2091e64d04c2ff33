// Package normalize canonicalizes HTTP requests so that semantically
// equivalent requests produce identical fingerprints.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Normalize canonicalizes req according to rules.
func Normalize(req Request, rules Rules) (NormalizedRequest, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return NormalizedRequest{}, fmt.Errorf("parse url: %w", err)
	}

	base := *u
	base.RawQuery = ""
	base.ForceQuery = false
	base.Fragment = ""
	base.RawFragment = ""
	urlNoQuery := base.String()

	queryRules := newRuleSet(rules.QueryReplacements, rules.QueryRemovals)
	authQuery := newRuleSet(nil, rules.AuthQueryParams)

	raw := parseQuery(u.RawQuery)
	queryHasAuth := len(applyItems(raw, authQuery)) < len(raw)
	items := applyItems(applyItems(raw, queryRules), authQuery)
	query := encodeQuery(items)

	bodyRules := newRuleSet(rules.BodyReplacements, rules.BodyRemovals)
	authBody := newRuleSet(nil, rules.AuthBodyParams)
	body := normalizeBody(req.Body, bodyRules, rules.IgnoreUnparsableMultipart)
	stripped := body
	if !authBody.empty() {
		stripped = normalizeBody(body, authBody, rules.IgnoreUnparsableMultipart)
	}
	bodyHasAuth := len(stripped) != len(body)

	headers, err := normalizeHeaders(req.Header, newHeaderRuleSet(rules.HeaderReplacements, rules.HeaderRemovals))
	if err != nil {
		return NormalizedRequest{}, err
	}

	n := NormalizedRequest{
		URL:            urlNoQuery,
		URLNoQuery:     urlNoQuery,
		Query:          query,
		Method:         strings.ToUpper(req.Method),
		Body:           stripped,
		Headers:        headers,
		QueryHasAuth:   queryHasAuth,
		BodyHasAuth:    bodyHasAuth,
		HeadersHasAuth: hasAuthHeader(req.Header, rules.AuthHeaders),
	}
	if query != nil {
		n.URL = urlNoQuery + "?" + *query
	}
	return n, nil
}

// NormalizeResponseBody applies the response body rules to a recorded JSON
// body. Bodies that are not JSON are returned unchanged.
func NormalizeResponseBody(body []byte, rules Rules) []byte {
	if len(body) == 0 {
		return body
	}
	rs := newRuleSet(rules.ResponseBodyReplacements, rules.ResponseBodyRemovals)
	if rs.empty() {
		return body
	}
	if out, ok := normalizeJSONBytes(body, rs); ok {
		return out
	}
	return body
}

type queryItem struct {
	name     string
	value    string
	hasValue bool
}

func parseQuery(raw string) []queryItem {
	if raw == "" {
		return nil
	}
	var items []queryItem
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		name, value, hasValue := strings.Cut(part, "=")
		items = append(items, queryItem{
			name:     unescape(name),
			value:    unescape(value),
			hasValue: hasValue,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].name < items[j].name })
	return items
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// applyItems applies rs to items and re-encodes JSON values, with or without
// rules.
func applyItems(items []queryItem, rs ruleSet) []queryItem {
	out := make([]queryItem, 0, len(items))
	for _, item := range items {
		if v, ok := rs.replacement(item.name); ok {
			out = append(out, queryItem{name: item.name, value: v.QueryString(), hasValue: true})
			continue
		}
		if rs.removes(item.name) {
			continue
		}
		if looksLikeJSON(item.value) {
			if normalized, ok := normalizeJSONBytes([]byte(item.value), rs); ok {
				item.value = string(normalized)
			}
		}
		out = append(out, item)
	}
	return out
}

func encodeQuery(items []queryItem) *string {
	if len(items) == 0 {
		return nil
	}
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(item.name))
		if item.hasValue {
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(item.value))
		}
	}
	s := b.String()
	return &s
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return false
	}
	return gjson.Valid(s)
}

func normalizeBody(body []byte, rs ruleSet, ignoreMultipart bool) []byte {
	if len(body) == 0 {
		return nil
	}
	if out, ok := normalizeJSONBytes(body, rs); ok {
		return out
	}
	if out, ok := normalizeMultipart(body, rs); ok {
		return out
	}
	if out, ok := normalizeForm(body, rs); ok {
		return out
	}
	if ignoreMultipart && looksLikeMultipart(body) {
		return nil
	}
	return body
}

func normalizeJSONBytes(data []byte, rs ruleSet) ([]byte, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	out, err := encodeJSON(applyJSON(v, rs))
	if err != nil {
		return nil, false
	}
	return out, true
}

func applyJSON(v any, rs ruleSet) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if r, ok := rs.replacement(k); ok {
				out[k] = r
				continue
			}
			if rs.removes(k) {
				continue
			}
			out[k] = applyJSON(child, rs)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = applyJSON(child, rs)
		}
		return out
	default:
		return v
	}
}

// encodeJSON writes v with sorted object keys and without HTML escaping.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func normalizeForm(body []byte, rs ruleSet) ([]byte, bool) {
	if !utf8.Valid(body) || bytes.ContainsAny(body, " \t\r\n") || !bytes.Contains(body, []byte("=")) {
		return nil, false
	}
	if _, err := url.ParseQuery(string(body)); err != nil {
		return nil, false
	}
	items := applyItems(parseQuery(string(body)), rs)
	q := encodeQuery(items)
	if q == nil {
		return nil, true
	}
	return []byte(*q), true
}

func normalizeHeaders(h http.Header, rs ruleSet) ([]byte, error) {
	if len(h) == 0 {
		return nil, nil
	}
	flat := make(map[string]string, len(h))
	for name, values := range h {
		key := http.CanonicalHeaderKey(name)
		if v, ok := rs.replacement(key); ok {
			flat[key] = v.QueryString()
			continue
		}
		if rs.removes(key) {
			continue
		}
		flat[key] = strings.Join(values, ", ")
	}
	if len(flat) == 0 {
		return nil, nil
	}
	out, err := encodeJSON(flat)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}
	return out, nil
}

func hasAuthHeader(h http.Header, names []string) bool {
	if len(h) == 0 || len(names) == 0 {
		return false
	}
	auth := make(map[string]struct{}, len(names))
	for _, name := range names {
		auth[http.CanonicalHeaderKey(name)] = struct{}{}
	}
	for name := range h {
		if _, ok := auth[http.CanonicalHeaderKey(name)]; ok {
			return true
		}
	}
	return false
}
