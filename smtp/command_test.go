package smtp

import "testing"

func TestParseCommandEHLOCaseInsensitive(t *testing.T) {
	for _, line := range []string{"EHLO client.example\r\n", "ehlo client.example\r\n", "EhLo client.example\r\n"} {
		cmd, _, ok := ParseCommand([]byte(line))
		if !ok {
			t.Fatalf("%q: expected success", line)
		}
		if cmd.Kind != CmdEHLO || cmd.Domain != "client.example" {
			t.Fatalf("%q: got %+v", line, cmd)
		}
	}
}

func TestParseCommandMailFromEmptyPath(t *testing.T) {
	cmd, _, ok := ParseCommand([]byte("MAIL FROM:<>\r\n"))
	if !ok {
		t.Fatalf("expected success")
	}
	if cmd.Kind != CmdMAIL || cmd.ReversePath != "" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestParseCommandMailFromWithParams(t *testing.T) {
	cmd, _, ok := ParseCommand([]byte("MAIL FROM:<a@b.test> SIZE=100 BODY=8BITMIME\r\n"))
	if !ok {
		t.Fatalf("expected success")
	}
	if cmd.ReversePath != "a@b.test" {
		t.Fatalf("got reverse path %q", cmd.ReversePath)
	}
	if cmd.MailParameters["SIZE"] != "100" || cmd.MailParameters["BODY"] != "8BITMIME" {
		t.Fatalf("got params %+v", cmd.MailParameters)
	}
}

func TestParseCommandRcptToPostmaster(t *testing.T) {
	for _, line := range []string{"RCPT TO:<Postmaster>\r\n", "RCPT TO:<postmaster>\r\n", "RCPT TO:<Postmaster@x.test>\r\n"} {
		cmd, _, ok := ParseCommand([]byte(line))
		if !ok {
			t.Fatalf("%q: expected success", line)
		}
		if cmd.Kind != CmdRCPT {
			t.Fatalf("%q: got %+v", line, cmd)
		}
	}
}

func TestParseCommandRcptToMailbox(t *testing.T) {
	cmd, _, ok := ParseCommand([]byte("RCPT TO:<c@d.test>\r\n"))
	if !ok || cmd.ForwardPath != "c@d.test" {
		t.Fatalf("got %+v ok=%v", cmd, ok)
	}
}

func TestParseCommandDataRsetNoopQuit(t *testing.T) {
	cases := map[string]CommandKind{
		"DATA\r\n": CmdDATA,
		"RSET\r\n": CmdRSET,
		"NOOP\r\n": CmdNOOP,
		"QUIT\r\n": CmdQUIT,
	}
	for line, kind := range cases {
		cmd, _, ok := ParseCommand([]byte(line))
		if !ok || cmd.Kind != kind {
			t.Fatalf("%q: got %+v ok=%v", line, cmd, ok)
		}
	}
}

func TestParseCommandNoopWithArgument(t *testing.T) {
	cmd, _, ok := ParseCommand([]byte("NOOP hello\r\n"))
	if !ok || cmd.String != "hello" {
		t.Fatalf("got %+v ok=%v", cmd, ok)
	}
}

func TestParseCommandUnknownVerb(t *testing.T) {
	_, code, ok := ParseCommand([]byte("FOOBAR\r\n"))
	if ok || code != CodeUnrecognizedCommand {
		t.Fatalf("expected 500, got code=%d ok=%v", code, ok)
	}
}

func TestParseCommandMissingCRLF(t *testing.T) {
	_, code, ok := ParseCommand([]byte("QUIT"))
	if ok || code != CodeUnrecognizedCommand {
		t.Fatalf("expected 500, got code=%d ok=%v", code, ok)
	}
}

func TestParseCommandBadMailboxIsBadParameter(t *testing.T) {
	_, code, ok := ParseCommand([]byte("MAIL FROM:<not-a-mailbox>\r\n"))
	if ok || code != CodeBadParameter {
		t.Fatalf("expected 501, got code=%d ok=%v", code, ok)
	}
}

func TestParseCommandAddressLiteral(t *testing.T) {
	cmd, _, ok := ParseCommand([]byte("MAIL FROM:<a@[192.0.2.1]>\r\n"))
	if !ok || cmd.ReversePath != "a@[192.0.2.1]" {
		t.Fatalf("got %+v ok=%v", cmd, ok)
	}
}

func TestParseCommandTrailingWhitespaceTolerated(t *testing.T) {
	cmd, _, ok := ParseCommand([]byte("QUIT  \r\n"))
	if !ok || cmd.Kind != CmdQUIT {
		t.Fatalf("got %+v ok=%v", cmd, ok)
	}
}

func TestParseCommandIPv6AddressLiteral(t *testing.T) {
	cases := []string{
		"MAIL FROM:<a@[IPv6:2001:db8::1]>\r\n",
		"MAIL FROM:<a@[IPv6:::1]>\r\n",
		"MAIL FROM:<a@[IPv6:2001:db8::192.0.2.1]>\r\n",
	}
	for _, line := range cases {
		cmd, code, ok := ParseCommand([]byte(line))
		if !ok {
			t.Fatalf("%q: expected success, got code=%d", line, code)
		}
		if cmd.Kind != CmdMAIL {
			t.Fatalf("%q: got %+v", line, cmd)
		}
	}
}

func TestParseCommandGeneralAddressLiteral(t *testing.T) {
	cmd, _, ok := ParseCommand([]byte("MAIL FROM:<a@[x400:c=us;a=usps;p=acme]>\r\n"))
	if !ok || cmd.Kind != CmdMAIL {
		t.Fatalf("got %+v ok=%v", cmd, ok)
	}
}

func TestParseCommandQuotedLocalPart(t *testing.T) {
	cmd, _, ok := ParseCommand([]byte("MAIL FROM:<\"john doe\"@x.test>\r\n"))
	if !ok || cmd.ReversePath != `"john doe"@x.test` {
		t.Fatalf("got %+v ok=%v", cmd, ok)
	}
}

func TestParseCommandUnrecognizedParameterIs504(t *testing.T) {
	_, code, ok := ParseCommand([]byte("MAIL FROM:<a@b.test> FOO=bar\r\n"))
	if ok || code != CodeParameterNotImplemented {
		// FOO=bar is a syntactically well-formed ESMTP parameter, just not
		// one this server recognises for MAIL.
		t.Fatalf("got code=%d ok=%v", code, ok)
	}
}

func TestParseCommandMalformedTrailingGarbageIs500(t *testing.T) {
	_, code, ok := ParseCommand([]byte("MAIL FROM:<a@b.test> BOGUS KEY=WITH SPACE\r\n"))
	if ok || code != CodeUnrecognizedCommand {
		t.Fatalf("got code=%d ok=%v", code, ok)
	}
}

func TestParseCommandHelpVrfyExpnStrings(t *testing.T) {
	for _, tc := range []struct {
		line string
		kind CommandKind
	}{
		{"VRFY someone\r\n", CmdVRFY},
		{"EXPN alias\r\n", CmdEXPN},
		{"HELP MAIL\r\n", CmdHELP},
	} {
		cmd, _, ok := ParseCommand([]byte(tc.line))
		if !ok || cmd.Kind != tc.kind {
			t.Fatalf("%q: got %+v ok=%v", tc.line, cmd, ok)
		}
	}
}
