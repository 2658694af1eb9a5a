package smtp

import (
	"strings"
)

// CommandKind tags the variant held by a parsed Command.
type CommandKind int

const (
	CmdEHLO CommandKind = iota
	CmdHELO
	CmdMAIL
	CmdRCPT
	CmdDATA
	CmdRSET
	CmdVRFY
	CmdEXPN
	CmdHELP
	CmdNOOP
	CmdQUIT
)

// Command is the parsed form of one SMTP command line (RFC 5321 §4.1).
// Only the fields relevant to Kind are populated.
type Command struct {
	Kind CommandKind

	Domain string // EHLO, HELO

	ReversePath    string            // MAIL
	MailParameters map[string]string // MAIL

	ForwardPath   string            // RCPT
	RcptParameters map[string]string // RCPT

	String string // VRFY, EXPN, HELP, NOOP
}

// ParseCommand parses one CRLF-terminated command line. On success it
// returns the parsed Command and ok=true. On failure it returns the SMTP
// error code that should be sent back to the client.
func ParseCommand(line []byte) (Command, Code, bool) {
	rest, kind, matched := commandName(line)
	if !matched {
		return Command{}, CodeUnrecognizedCommand, false
	}

	var cmd Command
	var ok bool
	errCode := CodeBadParameter
	switch kind {
	case CmdEHLO:
		cmd, rest, ok = parseEHLO(rest)
	case CmdHELO:
		cmd, rest, ok = parseHELO(rest)
	case CmdMAIL:
		cmd, rest, errCode, ok = parseMAIL(rest)
	case CmdRCPT:
		cmd, rest, errCode, ok = parseRCPT(rest)
	case CmdDATA:
		cmd, rest, ok = Command{Kind: CmdDATA}, rest, true
	case CmdRSET:
		cmd, rest, ok = Command{Kind: CmdRSET}, rest, true
	case CmdVRFY:
		cmd, rest, ok = parseStringArg(rest, CmdVRFY, false)
	case CmdEXPN:
		cmd, rest, ok = parseStringArg(rest, CmdEXPN, false)
	case CmdHELP:
		cmd, rest, ok = parseStringArg(rest, CmdHELP, true)
	case CmdNOOP:
		cmd, rest, ok = parseStringArg(rest, CmdNOOP, true)
	case CmdQUIT:
		cmd, rest, ok = Command{Kind: CmdQUIT}, rest, true
	}
	if !ok {
		return Command{}, errCode, false
	}

	// Tolerate trailing ASCII whitespace (excluding CR/LF) before the
	// terminating CRLF.
	for len(rest) > 0 && rest[0] != '\r' && rest[0] != '\n' && isASCIISpace(rest[0]) {
		rest = rest[1:]
	}

	if !strings.HasPrefix(string(rest), "\r\n") {
		return Command{}, CodeUnrecognizedCommand, false
	}
	rest = rest[2:]
	if len(rest) != 0 {
		return Command{}, CodeUnrecognizedCommand, false
	}
	return cmd, 0, true
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t'
}

// commandName recognises one of the eleven command verbs, case-insensitively,
// and returns the bytes following it.
func commandName(i []byte) ([]byte, CommandKind, bool) {
	verbs := []struct {
		name string
		kind CommandKind
	}{
		{"EHLO", CmdEHLO}, {"HELO", CmdHELO}, {"MAIL", CmdMAIL}, {"RCPT", CmdRCPT},
		{"DATA", CmdDATA}, {"RSET", CmdRSET}, {"VRFY", CmdVRFY}, {"EXPN", CmdEXPN},
		{"HELP", CmdHELP}, {"NOOP", CmdNOOP}, {"QUIT", CmdQUIT},
	}
	if len(i) < 4 {
		return nil, 0, false
	}
	head := strings.ToUpper(string(i[:4]))
	for _, v := range verbs {
		if head == v.name {
			return i[4:], v.kind, true
		}
	}
	return nil, 0, false
}

func parseEHLO(i []byte) (Command, []byte, bool) {
	i, ok := eatByte(i, ' ')
	if !ok {
		return Command{}, i, false
	}
	dom, rest, ok := domain(i)
	if !ok {
		dom, rest, ok = addressLiteral(i)
		if !ok {
			return Command{}, i, false
		}
	}
	return Command{Kind: CmdEHLO, Domain: string(dom)}, rest, true
}

func parseHELO(i []byte) (Command, []byte, bool) {
	i, ok := eatByte(i, ' ')
	if !ok {
		return Command{}, i, false
	}
	dom, rest, ok := domain(i)
	if !ok {
		return Command{}, i, false
	}
	return Command{Kind: CmdHELO, Domain: string(dom)}, rest, true
}

// knownMailParams and knownRcptParams are the ESMTP parameter keywords this
// server recognises (RFC 1869 extension keywords commonly advertised by
// clients). A syntactically well-formed KEY=VALUE token whose KEY is not in
// the relevant set is reported as CodeParameterNotImplemented (504) rather
// than silently accepted or rejected as a syntax error.
var knownMailParams = map[string]bool{
	"SIZE": true, "BODY": true, "AUTH": true, "SMTPUTF8": true, "RET": true, "ENVID": true,
}

var knownRcptParams = map[string]bool{
	"NOTIFY": true, "ORCPT": true,
}

func parseMAIL(i []byte) (Command, []byte, Code, bool) {
	rest, ok := eatCaseInsensitive(i, " FROM:")
	if !ok {
		return Command{}, i, CodeBadParameter, false
	}
	rp, rest, ok := reversePath(rest)
	if !ok {
		return Command{}, i, CodeBadParameter, false
	}
	var params map[string]string
	if after, ok2 := eatByte(rest, ' '); ok2 {
		p, r2, unknown, ok3 := mailParameters(after, knownMailParams)
		if unknown != "" {
			return Command{}, i, CodeParameterNotImplemented, false
		}
		if ok3 {
			params = p
			rest = r2
		}
	}
	return Command{Kind: CmdMAIL, ReversePath: string(rp), MailParameters: params}, rest, 0, true
}

func parseRCPT(i []byte) (Command, []byte, Code, bool) {
	rest, ok := eatCaseInsensitive(i, " TO:")
	if !ok {
		return Command{}, i, CodeBadParameter, false
	}
	fp, rest, ok := forwardPathExt(rest)
	if !ok {
		return Command{}, i, CodeBadParameter, false
	}
	var params map[string]string
	if after, ok2 := eatByte(rest, ' '); ok2 {
		p, r2, unknown, ok3 := mailParameters(after, knownRcptParams)
		if unknown != "" {
			return Command{}, i, CodeParameterNotImplemented, false
		}
		if ok3 {
			params = p
			rest = r2
		}
	}
	return Command{Kind: CmdRCPT, ForwardPath: string(fp), RcptParameters: params}, rest, 0, true
}

func parseStringArg(i []byte, kind CommandKind, optional bool) (Command, []byte, bool) {
	after, ok := eatByte(i, ' ')
	if !ok {
		if optional {
			return Command{Kind: kind, String: ""}, i, true
		}
		return Command{}, i, false
	}
	s, rest, ok := smtpString(after)
	if !ok {
		return Command{}, i, false
	}
	return Command{Kind: kind, String: string(s)}, rest, true
}

// --- grammar primitives, RFC 5321 §4.1.2 ---

func reversePath(i []byte) ([]byte, []byte, bool) {
	if p, rest, ok := path(i); ok {
		return p, rest, true
	}
	rest, ok := eatCaseInsensitive(i, "<>")
	if !ok {
		return nil, i, false
	}
	return []byte{}, rest, true
}

func forwardPathExt(i []byte) ([]byte, []byte, bool) {
	if rest, ok := eatByte(i, '<'); ok {
		if dom, rest2, ok2 := matchPostmasterAtDomain(rest); ok2 {
			if rest3, ok3 := eatByte(rest2, '>'); ok3 {
				return append([]byte("Postmaster@"), dom...), rest3, true
			}
		}
		if rest2, ok2 := eatCaseInsensitive(rest, "Postmaster>"); ok2 {
			return []byte("Postmaster"), rest2, true
		}
	}
	return path(i)
}

func matchPostmasterAtDomain(i []byte) ([]byte, []byte, bool) {
	rest, ok := eatCaseInsensitive(i, "Postmaster@")
	if !ok {
		return nil, i, false
	}
	return domain(rest)
}

func path(i []byte) ([]byte, []byte, bool) {
	rest, ok := eatByte(i, '<')
	if !ok {
		return nil, i, false
	}
	if adl, r2, ok2 := atDomainList(rest); ok2 {
		if r3, ok3 := eatByte(r2, ':'); ok3 {
			rest = r3
			_ = adl
		}
	}
	mb, rest, ok := mailbox(rest)
	if !ok {
		return nil, i, false
	}
	rest, ok = eatByte(rest, '>')
	if !ok {
		return nil, i, false
	}
	return mb, rest, true
}

func atDomainList(i []byte) ([]byte, []byte, bool) {
	start := i
	_, rest, ok := atDomain(i)
	if !ok {
		return nil, i, false
	}
	for {
		r2, ok2 := eatByte(rest, ',')
		if !ok2 {
			break
		}
		_, r3, ok3 := atDomain(r2)
		if !ok3 {
			break
		}
		rest = r3
	}
	return start[:len(start)-len(rest)], rest, true
}

func atDomain(i []byte) ([]byte, []byte, bool) {
	rest, ok := eatByte(i, '@')
	if !ok {
		return nil, i, false
	}
	return domain(rest)
}

func mailbox(i []byte) ([]byte, []byte, bool) {
	start := i
	lp, rest, ok := localPart(i)
	if !ok {
		return nil, i, false
	}
	rest, ok = eatByte(rest, '@')
	if !ok {
		return nil, i, false
	}
	if dom, r2, ok2 := domain(rest); ok2 {
		rest = r2
		_ = dom
	} else if lit, r2, ok2 := addressLiteral(rest); ok2 {
		rest = r2
		_ = lit
	} else {
		return nil, i, false
	}
	_ = lp
	return start[:len(start)-len(rest)], rest, true
}

func localPart(i []byte) ([]byte, []byte, bool) {
	if s, rest, ok := dotString(i); ok {
		return s, rest, true
	}
	return quotedString(i)
}

func domain(i []byte) ([]byte, []byte, bool) {
	start := i
	_, rest, ok := subdomain(i)
	if !ok {
		return nil, i, false
	}
	for {
		r2, ok2 := eatByte(rest, '.')
		if !ok2 {
			break
		}
		_, r3, ok3 := subdomain(r2)
		if !ok3 {
			break
		}
		rest = r3
	}
	return start[:len(start)-len(rest)], rest, true
}

func subdomain(i []byte) ([]byte, []byte, bool) {
	start := i
	if len(i) == 0 || !isLetDig(i[0]) {
		return nil, i, false
	}
	rest := i[1:]
	r2, _ := ldhTail(rest)
	rest = r2
	return start[:len(start)-len(rest)], rest, true
}

// ldhTail consumes zero or more of ("-" alphanumeric+) | alphanumeric+.
func ldhTail(i []byte) ([]byte, bool) {
	for len(i) > 0 {
		if i[0] == '-' {
			j := 1
			n := 0
			for j < len(i) && isAlnum(i[j]) {
				j++
				n++
			}
			if n == 0 {
				break
			}
			i = i[j:]
			continue
		}
		if isAlnum(i[0]) {
			j := 0
			for j < len(i) && isAlnum(i[j]) {
				j++
			}
			i = i[j:]
			continue
		}
		break
	}
	return i, true
}

func isLetDig(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func isAlnum(b byte) bool { return isLetDig(b) }

func addressLiteral(i []byte) ([]byte, []byte, bool) {
	rest, ok := eatByte(i, '[')
	if !ok {
		return nil, i, false
	}
	start := i
	var body []byte
	var r2 []byte
	if b, r, ok2 := ipv4AddressLiteral(rest); ok2 {
		body, r2 = b, r
	} else if b, r, ok2 := ipv6AddressLiteral(rest); ok2 {
		body, r2 = b, r
	} else if b, r, ok2 := generalAddressLiteral(rest); ok2 {
		body, r2 = b, r
	} else {
		return nil, i, false
	}
	r3, ok := eatByte(r2, ']')
	if !ok {
		return nil, i, false
	}
	_ = body
	return start[:len(start)-len(r3)], r3, true
}

func ipv4AddressLiteral(i []byte) ([]byte, []byte, bool) {
	start := i
	_, rest, ok := snum(i)
	if !ok {
		return nil, i, false
	}
	for k := 0; k < 3; k++ {
		r2, ok2 := eatByte(rest, '.')
		if !ok2 {
			return nil, i, false
		}
		_, r3, ok3 := snum(r2)
		if !ok3 {
			return nil, i, false
		}
		rest = r3
	}
	return start[:len(start)-len(rest)], rest, true
}

func snum(i []byte) ([]byte, []byte, bool) {
	n := 0
	for n < len(i) && n < 3 && i[n] >= '0' && i[n] <= '9' {
		n++
	}
	if n == 0 {
		return nil, i, false
	}
	return i[:n], i[n:], true
}

func ipv6AddressLiteral(i []byte) ([]byte, []byte, bool) {
	rest, ok := eatCaseInsensitive(i, "IPv6:")
	if !ok {
		return nil, i, false
	}
	start := rest
	// The IPv4-embedded forms are tried first: the pure hex forms would
	// otherwise match a prefix such as "2001:db8::192" and leave ".0.2.1".
	if _, r, ok2 := ipv6v4Full(rest); ok2 {
		return start[:len(start)-len(r)], r, true
	}
	if _, r, ok2 := ipv6v4Comp(rest); ok2 {
		return start[:len(start)-len(r)], r, true
	}
	if _, r, ok2 := ipv6Full(rest); ok2 {
		return start[:len(start)-len(r)], r, true
	}
	if _, r, ok2 := ipv6Comp(rest); ok2 {
		return start[:len(start)-len(r)], r, true
	}
	return nil, i, false
}

func ipv6Hex(i []byte) ([]byte, []byte, bool) {
	n := 0
	for n < len(i) && n < 4 && isHexDigit(i[n]) {
		n++
	}
	if n == 0 {
		return nil, i, false
	}
	return i[:n], i[n:], true
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func ipv6Full(i []byte) ([]byte, []byte, bool) {
	start := i
	_, rest, ok := ipv6Hex(i)
	if !ok {
		return nil, i, false
	}
	for k := 0; k < 7; k++ {
		r2, ok2 := eatByte(rest, ':')
		if !ok2 {
			return nil, i, false
		}
		_, r3, ok3 := ipv6Hex(r2)
		if !ok3 {
			return nil, i, false
		}
		rest = r3
	}
	return start[:len(start)-len(rest)], rest, true
}

func ipv6HexGroup(i []byte, maxCount int) []byte {
	rest := i
	for k := 0; k < maxCount; k++ {
		r2, ok := eatByte(rest, ':')
		if !ok {
			break
		}
		_, r3, ok := ipv6Hex(r2)
		if !ok {
			break
		}
		rest = r3
	}
	return rest
}

func ipv6Comp(i []byte) ([]byte, []byte, bool) {
	start := i
	rest := i
	if _, r, ok := ipv6Hex(rest); ok {
		rest = ipv6HexGroup(r, 5)
	}
	r2, ok := eatStr(rest, "::")
	if !ok {
		return nil, i, false
	}
	rest = r2
	if _, r, ok := ipv6Hex(rest); ok {
		rest = ipv6HexGroup(r, 5)
	}
	return start[:len(start)-len(rest)], rest, true
}

func ipv6v4Full(i []byte) ([]byte, []byte, bool) {
	start := i
	_, rest, ok := ipv6Hex(i)
	if !ok {
		return nil, i, false
	}
	rest = ipv6HexGroup(rest, 5)
	rest, ok = eatByte(rest, ':')
	if !ok {
		return nil, i, false
	}
	_, rest, ok = ipv4AddressLiteral(rest)
	if !ok {
		return nil, i, false
	}
	return start[:len(start)-len(rest)], rest, true
}

func ipv6v4Comp(i []byte) ([]byte, []byte, bool) {
	start := i
	rest := i
	if _, r, ok := ipv6Hex(rest); ok {
		rest = ipv6HexGroup(r, 3)
	}
	r2, ok := eatStr(rest, "::")
	if !ok {
		return nil, i, false
	}
	rest = r2
	if _, r, ok := ipv6Hex(rest); ok {
		r = ipv6HexGroup(r, 3)
		if r2, ok2 := eatByte(r, ':'); ok2 {
			rest = r2
		}
	}
	_, rest, ok = ipv4AddressLiteral(rest)
	if !ok {
		return nil, i, false
	}
	return start[:len(start)-len(rest)], rest, true
}

func generalAddressLiteral(i []byte) ([]byte, []byte, bool) {
	start := i
	_, rest, ok := ldhStr(i)
	if !ok {
		return nil, i, false
	}
	rest, ok = eatByte(rest, ':')
	if !ok {
		return nil, i, false
	}
	n := 0
	for n < len(rest) && isDcontent(rest[n]) {
		n++
	}
	if n == 0 {
		return nil, i, false
	}
	rest = rest[n:]
	return start[:len(start)-len(rest)], rest, true
}

func isDcontent(b byte) bool { return (b >= 33 && b <= 90) || (b >= 94 && b <= 126) }

func ldhStr(i []byte) ([]byte, []byte, bool) {
	start := i
	rest := i
	matchedAny := false
	for {
		if len(rest) > 0 && rest[0] == '-' {
			j := 1
			n := 0
			for j < len(rest) && isAlnum(rest[j]) {
				j++
				n++
			}
			if n == 0 {
				break
			}
			rest = rest[j:]
			matchedAny = true
			continue
		}
		n := 0
		for n < len(rest) && isAlnum(rest[n]) {
			n++
		}
		if n == 0 {
			break
		}
		rest = rest[n:]
		matchedAny = true
	}
	if !matchedAny {
		return nil, i, false
	}
	return start[:len(start)-len(rest)], rest, true
}

func smtpString(i []byte) ([]byte, []byte, bool) {
	if s, rest, ok := atom(i); ok {
		return s, rest, true
	}
	return quotedString(i)
}

func dotString(i []byte) ([]byte, []byte, bool) {
	start := i
	_, rest, ok := atom(i)
	if !ok {
		return nil, i, false
	}
	for {
		r2, ok2 := eatByte(rest, '.')
		if !ok2 {
			break
		}
		_, r3, ok3 := atom(r2)
		if !ok3 {
			break
		}
		rest = r3
	}
	return start[:len(start)-len(rest)], rest, true
}

func atom(i []byte) ([]byte, []byte, bool) {
	n := 0
	for n < len(i) && isAtext(i[n]) {
		n++
	}
	if n == 0 {
		return nil, i, false
	}
	return i[:n], i[n:], true
}

func isAtext(b byte) bool {
	if isAlnum(b) {
		return true
	}
	switch b {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '/', '=', '?', '^', '_', '`', '{', '|', '}', '~':
		return true
	}
	return false
}

func quotedString(i []byte) ([]byte, []byte, bool) {
	rest, ok := eatByte(i, '"')
	if !ok {
		return nil, i, false
	}
	start := rest
	for {
		if c, r2, ok2 := qcontentSMTP(rest); ok2 {
			rest = r2
			_ = c
			continue
		}
		break
	}
	content := start[:len(start)-len(rest)]
	rest, ok = eatByte(rest, '"')
	if !ok {
		return nil, i, false
	}
	return content, rest, true
}

func qcontentSMTP(i []byte) (byte, []byte, bool) {
	if len(i) == 0 {
		return 0, i, false
	}
	if isQtextSMTP(i[0]) {
		return i[0], i[1:], true
	}
	if i[0] == '\\' && len(i) > 1 && isQtextSMTP(i[1]) {
		return i[1], i[2:], true
	}
	return 0, i, false
}

func isQtextSMTP(b byte) bool {
	return (b >= 32 && b <= 33) || (b >= 35 && b <= 91) || (b >= 93 && b <= 126)
}

// --- ESMTP parameters ---

// mailParameters parses zero or more space-separated KEY=VALUE tokens.
// known holds the parameter keywords this command accepts; a token whose
// key parses correctly but is absent from known is reported by returning
// its name as unknown so the caller can map it to CodeParameterNotImplemented
// instead of treating it as a generic syntax failure.
func mailParameters(i []byte, known map[string]bool) (params map[string]string, rest []byte, unknown string, ok bool) {
	params = map[string]string{}
	k, v, rest, ok := esmtpParam(i)
	if !ok {
		return nil, i, "", false
	}
	if !known[strings.ToUpper(k)] {
		return nil, i, k, false
	}
	params[k] = v
	for {
		r2, ok2 := eatByte(rest, ' ')
		if !ok2 {
			break
		}
		k2, v2, r3, ok3 := esmtpParam(r2)
		if !ok3 {
			break
		}
		if !known[strings.ToUpper(k2)] {
			return nil, i, k2, false
		}
		params[k2] = v2
		rest = r3
	}
	return params, rest, "", true
}

func esmtpParam(i []byte) (string, string, []byte, bool) {
	k, rest, ok := esmtpKeyword(i)
	if !ok {
		return "", "", i, false
	}
	rest, ok = eatByte(rest, '=')
	if !ok {
		return "", "", i, false
	}
	v, rest, ok := esmtpValue(rest)
	if !ok {
		return "", "", i, false
	}
	return string(k), string(v), rest, true
}

func esmtpKeyword(i []byte) ([]byte, []byte, bool) {
	if len(i) == 0 || !isAlnum(i[0]) {
		return nil, i, false
	}
	n := 1
	for n < len(i) && (i[n] == '-' || isAlnum(i[n])) {
		n++
	}
	return i[:n], i[n:], true
}

func esmtpValue(i []byte) ([]byte, []byte, bool) {
	n := 0
	for n < len(i) && isEsmtpValueChar(i[n]) {
		n++
	}
	if n == 0 {
		return nil, i, false
	}
	return i[:n], i[n:], true
}

func isEsmtpValueChar(b byte) bool {
	return (b >= 33 && b <= 60) || (b >= 62 && b <= 126)
}

// --- low-level byte helpers ---

func eatByte(i []byte, b byte) ([]byte, bool) {
	if len(i) == 0 || i[0] != b {
		return i, false
	}
	return i[1:], true
}

func eatStr(i []byte, s string) ([]byte, bool) {
	if len(i) < len(s) || string(i[:len(s)]) != s {
		return i, false
	}
	return i[len(s):], true
}

func eatCaseInsensitive(i []byte, s string) ([]byte, bool) {
	if len(i) < len(s) || !strings.EqualFold(string(i[:len(s)]), s) {
		return i, false
	}
	return i[len(s):], true
}
