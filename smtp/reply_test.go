package smtp

import "testing"

func TestReplySingleLineUsesDefaultText(t *testing.T) {
	var r Reply
	r.SetCode(CodeServiceReady)
	r.Finish()
	want := "220 service ready\r\n"
	if got := string(r.Bytes()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReplyMultiLineDashing(t *testing.T) {
	var r Reply
	r.SetCode(CodeMailActionOkay)
	r.Line("first")
	r.Line("second")
	r.Finish()
	want := "250-first\r\n250 second\r\n"
	if got := string(r.Bytes()); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestReplyClearResetsState(t *testing.T) {
	var r Reply
	r.SetCode(CodeMailActionOkay)
	r.Line("ok")
	r.Clear()
	if !r.IsEmpty() {
		t.Fatalf("expected reply to be empty after Clear")
	}
}

func TestReplyFinishPanicsWhenEmpty(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic finishing an empty reply")
		}
	}()
	var r Reply
	r.Finish()
}

func TestReplyLinePanicsWithoutCode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic appending a line before a code is set")
		}
	}()
	var r Reply
	r.Line("oops")
}
