package imf

// DecodeFrom decodes the From header as a mailbox-list.
func DecodeFrom(hm *HeaderMap) ([]Mailbox, error) {
	v, ok := hm.Get(HeaderFrom)
	if !ok {
		return nil, &ParseError{Field: "From", Msg: "header not present"}
	}
	list, rest, ok := mailboxList([]byte(v))
	if !ok {
		return nil, &ParseError{Field: "From", Msg: "invalid mailbox-list"}
	}
	if !fullyConsumed(rest) {
		return nil, &ParseError{Field: "From", Msg: "trailing data after mailbox-list"}
	}
	return list, nil
}

// DecodeSender decodes the Sender header as a single mailbox.
func DecodeSender(hm *HeaderMap) (Mailbox, error) {
	v, ok := hm.Get(HeaderSender)
	if !ok {
		return Mailbox{}, &ParseError{Field: "Sender", Msg: "header not present"}
	}
	mb, rest, ok := mailboxIMF([]byte(v))
	if !ok {
		return Mailbox{}, &ParseError{Field: "Sender", Msg: "invalid mailbox"}
	}
	if !fullyConsumed(rest) {
		return Mailbox{}, &ParseError{Field: "Sender", Msg: "trailing data after mailbox"}
	}
	return mb, nil
}

// DecodeTo decodes the To header as an address-list (mailboxes and/or
// groups).
func DecodeTo(hm *HeaderMap) ([]Address, error) {
	v, ok := hm.Get(HeaderTo)
	if !ok {
		return nil, &ParseError{Field: "To", Msg: "header not present"}
	}
	list, rest, ok := addressList([]byte(v))
	if !ok {
		return nil, &ParseError{Field: "To", Msg: "invalid address-list"}
	}
	if !fullyConsumed(rest) {
		return nil, &ParseError{Field: "To", Msg: "trailing data after address-list"}
	}
	return list, nil
}

// DecodeSubject returns the raw normalised Subject value; it carries no
// further structure.
func DecodeSubject(hm *HeaderMap) (string, error) {
	v, ok := hm.Get(HeaderSubject)
	if !ok {
		return "", &ParseError{Field: "Subject", Msg: "header not present"}
	}
	return v, nil
}

// fullyConsumed reports whether rest is empty once any trailing whitespace
// is trimmed, i.e. the decoder consumed the entire header value.
func fullyConsumed(rest []byte) bool {
	rest = skipCFWS(rest)
	return len(rest) == 0
}
