// Package imf implements a forgiving parser for the Internet Message Format
// header block (RFC 5322), including the typed From/Sender/To/Subject
// decoders built on its address grammar.
package imf

import "fmt"

// HeaderName is an ASCII-only field name compared, hashed, and ordered
// case-insensitively. It is normalised to lowercase at construction so that
// Go's native string equality and map hashing already provide case-insensitive
// semantics without a custom comparator.
type HeaderName string

// NewHeaderName validates that b is ASCII-only and returns the normalised,
// lowercase HeaderName.
func NewHeaderName(b []byte) (HeaderName, error) {
	out := make([]byte, len(b))
	for i, c := range b {
		if c > 0x7F {
			return "", fmt.Errorf("imf: header name contains non-ASCII byte 0x%02x", c)
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return HeaderName(out), nil
}

// MustHeaderName is NewHeaderName for compile-time-known literals.
func MustHeaderName(s string) HeaderName {
	n, err := NewHeaderName([]byte(s))
	if err != nil {
		panic(err)
	}
	return n
}

// String returns the normalised (lowercase) field name.
func (h HeaderName) String() string { return string(h) }

// Well-known header names used by the ingest pipeline's "known headers" set
// and the typed decoders.
var (
	HeaderFrom       = MustHeaderName("from")
	HeaderSender     = MustHeaderName("sender")
	HeaderReplyTo    = MustHeaderName("reply-to")
	HeaderTo         = MustHeaderName("to")
	HeaderCc         = MustHeaderName("cc")
	HeaderBcc        = MustHeaderName("bcc")
	HeaderMessageID  = MustHeaderName("message-id")
	HeaderInReplyTo  = MustHeaderName("in-reply-to")
	HeaderReferences = MustHeaderName("references")
	HeaderSubject    = MustHeaderName("subject")
	HeaderComments   = MustHeaderName("comments")
	HeaderKeywords   = MustHeaderName("keywords")
	HeaderOrigDate   = MustHeaderName("date")
)

// KnownHeaders lists the originator, destination, identification,
// informational and orig-date header names declared above. Trace and
// resent-* headers are not in it, and the ingest sink does not filter on
// it: the sink stores every header of a message.
var KnownHeaders = []HeaderName{
	HeaderFrom, HeaderSender, HeaderReplyTo, HeaderTo, HeaderCc, HeaderBcc,
	HeaderMessageID, HeaderInReplyTo, HeaderReferences, HeaderSubject,
	HeaderComments, HeaderKeywords, HeaderOrigDate,
}
