// Package smtp implements the wire-level building blocks of the SMTP
// receiver: reply encoding (this file) and command parsing (command.go).
package smtp

import (
	"fmt"
)

// Code is a three-digit SMTP reply code.
type Code int

// The reply codes this server is able to emit, and their canonical default
// text used when a Reply is finished without an explicit line.
const (
	CodeSystemStatus               Code = 211
	CodeHelpMessage                Code = 214
	CodeServiceReady               Code = 220
	CodeServiceClosing             Code = 221
	CodeMailActionOkay             Code = 250
	CodeUserNotLocalForward        Code = 251
	CodeCannotVrfyAccept           Code = 252
	CodeStartMailInput             Code = 354
	CodeServiceNotAvailable        Code = 421
	CodeMailboxBusy                Code = 450
	CodeLocalErrorInProcessing     Code = 451
	CodeInsufficientStorage        Code = 452
	CodeUnableToAccommodateParams  Code = 455
	CodeUnrecognizedCommand        Code = 500
	CodeBadParameter               Code = 501
	CodeCommandNotImplemented      Code = 502
	CodeBadSequenceOfCommands      Code = 503
	CodeParameterNotImplemented    Code = 504
	CodeMailboxUnavailable         Code = 550
	CodeUserNotLocal               Code = 551
	CodeExceededStorageAllocation  Code = 552
	CodeMailboxNameNotAllowed      Code = 553
	CodeTransactionFailed          Code = 554
	CodeParametersNotImplementedFR Code = 555
)

// defaultText holds the canonical reply text for a code when the caller
// finishes a Reply without appending any line of its own.
var defaultText = map[Code]string{
	CodeSystemStatus:               "",
	CodeHelpMessage:                "",
	CodeServiceReady:               "service ready",
	CodeServiceClosing:             "service closing transmission channel",
	CodeMailActionOkay:             "requested mail action okay",
	CodeUserNotLocalForward:        "user not local; will forward",
	CodeCannotVrfyAccept:           "cannot VRFY user, will attempt delivery",
	CodeStartMailInput:             "start mail input",
	CodeServiceNotAvailable:        "service not available, closing transmission channel",
	CodeMailboxBusy:                "mail action not taken: mailbox unavailable",
	CodeLocalErrorInProcessing:     "action aborted: local error in processing",
	CodeInsufficientStorage:        "action not taken: insufficient system storage",
	CodeUnableToAccommodateParams:  "server unable to accomodate parameters",
	CodeUnrecognizedCommand:        "syntax error, command unrecognized",
	CodeBadParameter:               "syntax error in parameters or arguments",
	CodeCommandNotImplemented:      "command not implemented",
	CodeBadSequenceOfCommands:      "bad sequence of commands",
	CodeParameterNotImplemented:    "command parameter not implemented",
	CodeMailboxUnavailable:         "action not taken: mailbox unavailable",
	CodeUserNotLocal:               "user not local",
	CodeExceededStorageAllocation:  "mail action aborted: exceeded storage allocation",
	CodeMailboxNameNotAllowed:      "action not taken: mailbox name not allowed",
	CodeTransactionFailed:          "transaction failed",
	CodeParametersNotImplementedFR: "MAIL FROM/RCPT TO parameters not recognized or not implemented",
}

// Text returns the canonical default text for code, or "" if code carries
// none (including codes this table does not know about).
func (c Code) Text() string {
	return defaultText[c]
}

// Reply accumulates the text of an SMTP reply, taking care of the dashed
// multi-line continuation syntax (RFC 5321 §4.2.1). The zero value is ready
// to use.
type Reply struct {
	code     Code
	hasCode  bool
	data     []byte
	dashAt   int
	hasDashAt bool
}

// SetCode sets the reply code. It must be called before Line or Finish.
func (r *Reply) SetCode(code Code) {
	r.code = code
	r.hasCode = true
}

// Line appends one line of reply text under the current code. If a line was
// already appended, that previous line's trailing space is retrofitted into
// a dash so the reply becomes a proper multi-line continuation.
func (r *Reply) Line(text string) {
	if !r.hasCode {
		panic("smtp: Reply.Line called before a code was set")
	}
	fmt.Fprintf(&byteAppender{&r.data}, "%d ", int(r.code))
	if r.hasDashAt {
		r.data[r.dashAt] = '-'
	}
	r.dashAt = len(r.data) - 1
	r.hasDashAt = true
	r.data = append(r.data, text...)
	r.data = append(r.data, '\r', '\n')
}

// Finish completes the reply: if no line has been appended yet, the code's
// canonical default text becomes the sole line. It is a programmer error to
// finish a Reply with no code set.
func (r *Reply) Finish() {
	if !r.hasCode && len(r.data) == 0 {
		panic("smtp: Reply.Finish called on an empty reply")
	}
	if len(r.data) != 0 {
		return
	}
	r.Line(r.code.Text())
}

// Bytes returns the accumulated, CRLF-framed reply bytes. Valid after Finish.
func (r *Reply) Bytes() []byte {
	return r.data
}

// IsEmpty reports whether no code has been set and no text appended.
func (r *Reply) IsEmpty() bool {
	return !r.hasCode && len(r.data) == 0
}

// Clear resets the reply so it may be reused for the next command's reply.
func (r *Reply) Clear() {
	r.hasCode = false
	r.hasDashAt = false
	r.dashAt = 0
	r.data = r.data[:0]
}

// byteAppender adapts a *[]byte to io.Writer so fmt.Fprintf can append to it
// without an intermediate allocation.
type byteAppender struct {
	buf *[]byte
}

func (w *byteAppender) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}
