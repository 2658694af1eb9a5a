package imf

import (
	"fmt"
)

// ParseError identifies a header parse failure for a specific field name, or
// a block-level failure when Field is empty.
type ParseError struct {
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("imf: %s", e.Msg)
	}
	return fmt.Sprintf("imf: header %q: %s", e.Field, e.Msg)
}

// ParseHeaderBlock parses the bytes of a message's headers, up to and
// including the terminating empty line (CRLF), per RFC 5322's
// `headers = *optional-field CRLF`. It tolerates the obsolete productions
// (stray bare CR/LF, control characters in values) that real-world mail
// requires.
func ParseHeaderBlock(raw []byte) (*HeaderMap, error) {
	hm := newHeaderMap()
	lines := splitPhysicalLines(raw)

	var curName HeaderName
	var curValue []byte
	haveCur := false

	flush := func() {
		if haveCur {
			hm.set(curName, normaliseUnstructured(curValue))
		}
		haveCur = false
		curValue = nil
	}

	for _, line := range lines {
		if len(line) == 0 {
			// The blank line marks the end of the header block.
			break
		}
		if isFoldedContinuation(line) {
			if haveCur {
				// Folding whitespace, including the CRLF that preceded this
				// continuation line, collapses to a single space.
				curValue = append(curValue, ' ')
				curValue = append(curValue, trimLeadingWSP(line)...)
			}
			continue
		}
		flush()
		name, value, ok := splitFieldLine(line)
		if !ok {
			// Not a well-formed "name:value" line; the obsolete grammar
			// tolerates garbage lines by simply not producing a field for
			// them rather than failing the whole block.
			continue
		}
		hn, err := NewHeaderName(name)
		if err != nil {
			continue
		}
		curName = hn
		curValue = value
		haveCur = true
	}
	flush()
	return hm, nil
}

// splitPhysicalLines splits raw on "\r\n" boundaries, tolerating a bare "\n"
// as a line terminator too (obs-unstruct territory), and returns each line's
// content without its terminator.
func splitPhysicalLines(raw []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\n' {
			end := i
			if end > start && raw[end-1] == '\r' {
				end--
			}
			lines = append(lines, raw[start:end])
			start = i + 1
		}
	}
	if start < len(raw) {
		lines = append(lines, raw[start:])
	}
	return lines
}

func isFoldedContinuation(line []byte) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

func trimLeadingWSP(line []byte) []byte {
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	return line[i:]
}

// splitFieldLine splits "name:value" on the first colon. field-name is
// 1*ftext where ftext excludes ':' (and is restricted to printable ASCII
// minus ':' per RFC 5322 §2.2, but this parser only enforces "has a colon,
// non-empty name" to stay forgiving of obsolete/garbage input).
func splitFieldLine(line []byte) (name, value []byte, ok bool) {
	for i, b := range line {
		if b == ':' {
			if i == 0 {
				return nil, nil, false
			}
			return line[:i], line[i+1:], true
		}
	}
	return nil, nil, false
}

// normaliseUnstructured collapses runs of ASCII whitespace (the result of
// folding, plus any naturally adjacent spaces/tabs) into single spaces,
// strips any bare CR/LF that survived physical-line splitting, and trims
// leading/trailing ASCII whitespace. The result is the HeaderMap value.
func normaliseUnstructured(v []byte) string {
	out := make([]byte, 0, len(v))
	inSpace := false
	for _, b := range v {
		if b == '\r' || b == '\n' {
			continue
		}
		if b == ' ' || b == '\t' {
			inSpace = true
			continue
		}
		if inSpace && len(out) > 0 {
			out = append(out, ' ')
		}
		inSpace = false
		out = append(out, b)
	}
	return string(out)
}
