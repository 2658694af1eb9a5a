package imf

import "strings"

// Mailbox is a single address with an optional display name.
type Mailbox struct {
	DisplayName string
	Address     string
}

// Group is a named list of mailboxes, e.g. "Undisclosed recipients:;".
type Group struct {
	DisplayName string
	Mailboxes   []Mailbox
}

// Address is either a Mailbox or a Group, mirroring RFC 5322's
// `address = mailbox / group`.
type Address struct {
	Mailbox *Mailbox
	Group   *Group
}

func newMailboxRaw(displayName *string, address []byte) Mailbox {
	addr := trimASCIISpace(string(address))
	addr = stripCRLF(addr)
	mb := Mailbox{Address: addr}
	if displayName != nil {
		dn := trimASCIISpace(*displayName)
		mb.DisplayName = stripCRLF(dn)
	}
	return mb
}

func trimASCIISpace(s string) string {
	return strings.Trim(s, " \t")
}

func stripCRLF(s string) string {
	return strings.NewReplacer("\r\n", "", "\r", "", "\n", "").Replace(s)
}

// --- CFWS / FWS ---

// skipCFWS consumes optional folding whitespace and comments. Because
// HeaderMap values have already had true line-folding collapsed to single
// spaces, this only needs to handle plain runs of space/tab and
// parenthesised comments (which may nest and contain quoted-pairs).
func skipCFWS(i []byte) []byte {
	for {
		n := 0
		for n < len(i) && (i[n] == ' ' || i[n] == '\t') {
			n++
		}
		i = i[n:]
		if len(i) > 0 && i[0] == '(' {
			rest, ok := skipComment(i)
			if ok {
				i = rest
				continue
			}
		}
		break
	}
	return i
}

func skipComment(i []byte) ([]byte, bool) {
	if len(i) == 0 || i[0] != '(' {
		return i, false
	}
	depth := 0
	j := 0
	for j < len(i) {
		switch i[j] {
		case '(':
			depth++
			j++
		case ')':
			depth--
			j++
			if depth == 0 {
				return i[j:], true
			}
		case '\\':
			j += 2
		default:
			j++
		}
	}
	return i, false
}

// --- atoms, dot-atoms, quoted strings ---

func isAtextIMF(b byte) bool {
	if (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') {
		return true
	}
	switch b {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '/', '=', '?', '^', '_', '`', '{', '|', '}', '~':
		return true
	}
	return false
}

func atomIMF(i []byte) ([]byte, []byte, bool) {
	i = skipCFWS(i)
	n := 0
	for n < len(i) && isAtextIMF(i[n]) {
		n++
	}
	if n == 0 {
		return nil, i, false
	}
	val, rest := i[:n], i[n:]
	rest = skipCFWS(rest)
	return val, rest, true
}

func dotAtom(i []byte) ([]byte, []byte, bool) {
	i = skipCFWS(i)
	start := i
	n := 0
	for n < len(i) && isAtextIMF(i[n]) {
		n++
	}
	if n == 0 {
		return nil, i, false
	}
	rest := i[n:]
	for len(rest) > 0 && rest[0] == '.' {
		m := 0
		for m < len(rest)-1 && isAtextIMF(rest[1+m]) {
			m++
		}
		if m == 0 {
			break
		}
		rest = rest[1+m:]
	}
	val := start[:len(start)-len(rest)]
	rest = skipCFWS(rest)
	return val, rest, true
}

func isQtextIMF(b byte) bool {
	return b == 33 || (b >= 35 && b <= 91) || (b >= 93 && b <= 126) || b < 32 || b == 127
}

func quotedStringIMF(i []byte) ([]byte, []byte, bool) {
	i = skipCFWS(i)
	if len(i) == 0 || i[0] != '"' {
		return nil, i, false
	}
	rest := i[1:]
	var content []byte
	for len(rest) > 0 && rest[0] != '"' {
		if rest[0] == '\\' && len(rest) > 1 {
			content = append(content, rest[1])
			rest = rest[2:]
			continue
		}
		if rest[0] == ' ' || rest[0] == '\t' {
			content = append(content, rest[0])
			rest = rest[1:]
			continue
		}
		if isQtextIMF(rest[0]) {
			content = append(content, rest[0])
			rest = rest[1:]
			continue
		}
		break
	}
	if len(rest) == 0 || rest[0] != '"' {
		return nil, i, false
	}
	rest = rest[1:]
	rest = skipCFWS(rest)
	return content, rest, true
}

func word(i []byte) ([]byte, []byte, bool) {
	if v, rest, ok := atomIMF(i); ok {
		return v, rest, true
	}
	return quotedStringIMF(i)
}

// phrase = 1*word, joined with single spaces between words.
func phrase(i []byte) (string, []byte, bool) {
	v, rest, ok := word(i)
	if !ok {
		return "", i, false
	}
	words := [][]byte{v}
	for {
		v2, r2, ok2 := word(rest)
		if !ok2 {
			break
		}
		words = append(words, v2)
		rest = r2
	}
	parts := make([]string, len(words))
	for idx, w := range words {
		parts[idx] = string(w)
	}
	return strings.Join(parts, " "), rest, true
}

// --- domains ---

func isDtext(b byte) bool {
	return (b >= 33 && b <= 90) || (b >= 94 && b <= 126) || b < 32 || b == 127
}

func domainLiteral(i []byte) ([]byte, []byte, bool) {
	i = skipCFWS(i)
	if len(i) == 0 || i[0] != '[' {
		return nil, i, false
	}
	start := i
	rest := i[1:]
	for len(rest) > 0 && rest[0] != ']' {
		if rest[0] == ' ' || rest[0] == '\t' {
			rest = rest[1:]
			continue
		}
		if isDtext(rest[0]) {
			rest = rest[1:]
			continue
		}
		break
	}
	if len(rest) == 0 || rest[0] != ']' {
		return nil, i, false
	}
	rest = rest[1:]
	val := start[:len(start)-len(rest)]
	rest = skipCFWS(rest)
	return val, rest, true
}

func obsDomain(i []byte) ([]byte, []byte, bool) {
	start := i
	v, rest, ok := atomIMF(i)
	if !ok {
		return nil, i, false
	}
	_ = v
	for {
		r2 := rest
		if len(r2) == 0 || r2[0] != '.' {
			break
		}
		r2 = r2[1:]
		_, r3, ok2 := atomIMF(r2)
		if !ok2 {
			break
		}
		rest = r3
	}
	return start[:len(start)-len(rest)], rest, true
}

func domainIMF(i []byte) ([]byte, []byte, bool) {
	if v, rest, ok := dotAtom(i); ok {
		return v, rest, true
	}
	if v, rest, ok := domainLiteral(i); ok {
		return v, rest, true
	}
	return obsDomain(i)
}

// --- local-part, addr-spec ---

func obsLocalPart(i []byte) ([]byte, []byte, bool) {
	start := i
	_, rest, ok := word(i)
	if !ok {
		return nil, i, false
	}
	for {
		r2 := rest
		if len(r2) == 0 || r2[0] != '.' {
			break
		}
		r2 = r2[1:]
		_, r3, ok2 := word(r2)
		if !ok2 {
			break
		}
		rest = r3
	}
	return start[:len(start)-len(rest)], rest, true
}

func localPartIMF(i []byte) ([]byte, []byte, bool) {
	if v, rest, ok := dotAtom(i); ok {
		return v, rest, true
	}
	if v, rest, ok := quotedStringIMF(i); ok {
		return v, rest, true
	}
	return obsLocalPart(i)
}

func addrSpec(i []byte) ([]byte, []byte, bool) {
	start := i
	_, rest, ok := localPartIMF(i)
	if !ok {
		return nil, i, false
	}
	if len(rest) == 0 || rest[0] != '@' {
		return nil, i, false
	}
	rest = rest[1:]
	_, rest, ok = domainIMF(rest)
	if !ok {
		return nil, i, false
	}
	return start[:len(start)-len(rest)], rest, true
}

// --- angle-addr / name-addr ---

func obsRoute(i []byte) ([]byte, bool) {
	rest := i
	matched := false
	for {
		r2 := skipCFWS(rest)
		if len(r2) == 0 || r2[0] != '@' {
			break
		}
		r2 = r2[1:]
		_, r3, ok := domainIMF(r2)
		if !ok {
			break
		}
		rest = r3
		matched = true
		r4 := rest
		if len(r4) > 0 && r4[0] == ',' {
			rest = r4[1:]
			continue
		}
		break
	}
	if !matched {
		return i, false
	}
	if len(rest) == 0 || rest[0] != ':' {
		return i, false
	}
	return rest[1:], true
}

func angleAddr(i []byte) ([]byte, []byte, bool) {
	i2 := skipCFWS(i)
	if len(i2) == 0 || i2[0] != '<' {
		return nil, i, false
	}
	rest := i2[1:]
	if r2, ok := obsRoute(rest); ok {
		rest = r2
	}
	addr, rest, ok := addrSpec(rest)
	if !ok {
		return nil, i, false
	}
	if len(rest) == 0 || rest[0] != '>' {
		return nil, i, false
	}
	rest = rest[1:]
	rest = skipCFWS(rest)
	return addr, rest, true
}

func nameAddr(i []byte) (*string, []byte, []byte, bool) {
	var dn *string
	rest := i
	if s, r2, ok := phrase(i); ok {
		dn = &s
		rest = r2
	}
	addr, rest2, ok := angleAddr(rest)
	if !ok {
		return nil, nil, i, false
	}
	return dn, addr, rest2, true
}

func mailboxIMF(i []byte) (Mailbox, []byte, bool) {
	if dn, addr, rest, ok := nameAddr(i); ok {
		return newMailboxRaw(dn, addr), rest, true
	}
	if addr, rest, ok := addrSpec(i); ok {
		return newMailboxRaw(nil, addr), rest, true
	}
	return Mailbox{}, i, false
}

func mailboxList(i []byte) ([]Mailbox, []byte, bool) {
	mb, rest, ok := mailboxIMF(i)
	if !ok {
		return nil, i, false
	}
	list := []Mailbox{mb}
	for {
		r2 := skipCFWS(rest)
		if len(r2) == 0 || r2[0] != ',' {
			break
		}
		r2 = r2[1:]
		mb2, r3, ok2 := mailboxIMF(r2)
		if !ok2 {
			break
		}
		list = append(list, mb2)
		rest = r3
	}
	return list, rest, true
}

// --- groups, addresses ---

func displayName(i []byte) (string, []byte, bool) {
	return phrase(i)
}

func group(i []byte) (Group, []byte, bool) {
	dn, rest, ok := displayName(i)
	if !ok {
		return Group{}, i, false
	}
	rest = skipCFWS(rest)
	if len(rest) == 0 || rest[0] != ':' {
		return Group{}, i, false
	}
	rest = rest[1:]
	var mailboxes []Mailbox
	if list, r2, ok2 := mailboxList(rest); ok2 {
		mailboxes = list
		rest = r2
	} else {
		rest = skipCFWS(rest)
	}
	if len(rest) == 0 || rest[0] != ';' {
		return Group{}, i, false
	}
	rest = rest[1:]
	rest = skipCFWS(rest)
	return Group{DisplayName: dn, Mailboxes: mailboxes}, rest, true
}

func addressIMF(i []byte) (Address, []byte, bool) {
	if g, rest, ok := group(i); ok {
		return Address{Group: &g}, rest, true
	}
	if mb, rest, ok := mailboxIMF(i); ok {
		return Address{Mailbox: &mb}, rest, true
	}
	return Address{}, i, false
}

func addressList(i []byte) ([]Address, []byte, bool) {
	a, rest, ok := addressIMF(i)
	if !ok {
		return nil, i, false
	}
	list := []Address{a}
	for {
		r2 := skipCFWS(rest)
		if len(r2) == 0 || r2[0] != ',' {
			break
		}
		r2 = r2[1:]
		a2, r3, ok2 := addressIMF(r2)
		if !ok2 {
			break
		}
		list = append(list, a2)
		rest = r3
	}
	return list, rest, true
}
