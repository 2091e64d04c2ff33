package normalize

import (
	"bytes"
	"regexp"
)

// canonicalBoundary replaces the randomly generated boundary of multipart
// bodies.
const canonicalBoundary = "replaycache-boundary"

var (
	crlf          = []byte("\r\n")
	headerEnd     = []byte("\r\n\r\n")
	dispositionRe = regexp.MustCompile(`(?i)content-disposition:[^\r\n]*\bname="([^"]*)"`)
)

func multipartBoundary(body []byte) ([]byte, bool) {
	if !bytes.HasPrefix(body, []byte("--")) {
		return nil, false
	}
	line, _, found := bytes.Cut(body[2:], crlf)
	if !found || len(line) == 0 || len(line) > 200 {
		return nil, false
	}
	return line, true
}

func normalizeMultipart(body []byte, rs ruleSet) ([]byte, bool) {
	boundary, ok := multipartBoundary(body)
	if !ok {
		return nil, false
	}
	delim := append([]byte("--"), boundary...)
	chunks := bytes.Split(body, delim)
	// chunks[0] precedes the first delimiter and must be empty; the final
	// chunk starts with "--" for a well-formed closing delimiter.
	if len(chunks) < 3 || len(chunks[0]) != 0 || !bytes.HasPrefix(chunks[len(chunks)-1], []byte("--")) {
		return nil, false
	}

	var out bytes.Buffer
	for _, chunk := range chunks[1 : len(chunks)-1] {
		section, keep, ok := normalizeSection(chunk, rs)
		if !ok {
			return nil, false
		}
		if !keep {
			continue
		}
		out.WriteString("--" + canonicalBoundary)
		out.Write(section)
	}
	out.WriteString("--" + canonicalBoundary)
	out.Write(chunks[len(chunks)-1])
	return out.Bytes(), true
}

// normalizeSection rewrites one multipart section, which includes the CRLF
// following the delimiter and the CRLF preceding the next one.
func normalizeSection(chunk []byte, rs ruleSet) ([]byte, bool, bool) {
	if !bytes.HasPrefix(chunk, crlf) {
		return nil, false, false
	}
	head, content, found := bytes.Cut(chunk[len(crlf):], headerEnd)
	if !found {
		return nil, false, false
	}
	m := dispositionRe.FindSubmatch(head)
	if m == nil {
		return chunk, true, true
	}
	name := string(m[1])
	if rs.removes(name) {
		return nil, false, true
	}

	value := bytes.TrimSuffix(content, crlf)
	switch r, ok := rs.replacement(name); {
	case ok:
		value = []byte(r.QueryString())
	case name == "text":
		if normalized, ok := normalizeJSONBytes(value, rs); ok {
			value = normalized
		}
	default:
		return chunk, true, true
	}

	var out bytes.Buffer
	out.Write(crlf)
	out.Write(head)
	out.Write(headerEnd)
	out.Write(value)
	out.Write(crlf)
	return out.Bytes(), true, true
}

var multipartHints = [][]byte{
	[]byte("Content-Disposition: form-data"),
	[]byte("content-disposition: form-data"),
}

func looksLikeMultipart(body []byte) bool {
	for _, hint := range multipartHints {
		if bytes.Contains(body, hint) {
			return true
		}
	}
	return false
}
