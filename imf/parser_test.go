package imf

import "testing"

func TestParseHeaderBlockFoldedFrom(t *testing.T) {
	raw := []byte("From: Alice\r\n <a@x>, Bob\r\n <b@y>\r\n\r\n")
	hm, err := ParseHeaderBlock(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, err := DecodeFrom(hm)
	if err != nil {
		t.Fatalf("DecodeFrom: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d mailboxes, want 2: %+v", len(list), list)
	}
	if list[0].DisplayName != "Alice" || list[0].Address != "a@x" {
		t.Fatalf("got %+v", list[0])
	}
	if list[1].DisplayName != "Bob" || list[1].Address != "b@y" {
		t.Fatalf("got %+v", list[1])
	}
}

func TestParseHeaderBlockSubjectPassthrough(t *testing.T) {
	hm, err := ParseHeaderBlock([]byte("Subject: hi\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s, err := DecodeSubject(hm)
	if err != nil || s != "hi" {
		t.Fatalf("got %q err=%v", s, err)
	}
}

func TestParseHeaderBlockKeysCaseInsensitive(t *testing.T) {
	hm, err := ParseHeaderBlock([]byte("SUBJECT: hi\r\nsubject: bye\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hm.Len() != 1 {
		t.Fatalf("expected a single case-folded key, got %d", hm.Len())
	}
	v, _ := hm.Get(HeaderSubject)
	if v != "bye" {
		t.Fatalf("expected later header to win, got %q", v)
	}
}

func TestNormaliseUnstructuredTrimsAndCollapses(t *testing.T) {
	hm, err := ParseHeaderBlock([]byte("X-Test:   hello   \r\n world  \r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := hm.Get(MustHeaderName("x-test"))
	if !ok {
		t.Fatalf("expected X-Test header")
	}
	want := "hello world"
	if v != want {
		t.Fatalf("got %q, want %q", v, want)
	}
}

func TestHeaderNameRejectsNonASCII(t *testing.T) {
	if _, err := NewHeaderName([]byte("Subj\xe9ct")); err == nil {
		t.Fatalf("expected error for non-ASCII header name")
	}
}

func TestDecodeSenderSingleMailbox(t *testing.T) {
	hm, err := ParseHeaderBlock([]byte("Sender: Carol <c@z>\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mb, err := DecodeSender(hm)
	if err != nil {
		t.Fatalf("DecodeSender: %v", err)
	}
	if mb.DisplayName != "Carol" || mb.Address != "c@z" {
		t.Fatalf("got %+v", mb)
	}
}

func TestDecodeToGroupAndMailbox(t *testing.T) {
	hm, err := ParseHeaderBlock([]byte("To: Friends: a@x, b@y;, c@z\r\n\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list, err := DecodeTo(hm)
	if err != nil {
		t.Fatalf("DecodeTo: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d addresses, want 2: %+v", len(list), list)
	}
	if list[0].Group == nil || list[0].Group.DisplayName != "Friends" || len(list[0].Group.Mailboxes) != 2 {
		t.Fatalf("got %+v", list[0])
	}
	if list[1].Mailbox == nil || list[1].Mailbox.Address != "c@z" {
		t.Fatalf("got %+v", list[1])
	}
}
