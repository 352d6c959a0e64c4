package submit

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ldcasilang/sui-portfolio/internal/chain"
)

// Kind classifies a failed submission.
type Kind string

const (
	KindValidation             Kind = "validation"
	KindBusy                   Kind = "busy"
	KindUserRejected           Kind = "user_rejected"
	KindInsufficientFunds      Kind = "insufficient_funds"
	KindRemoteFunctionMismatch Kind = "remote_function_mismatch"
	KindUnknown                Kind = "unknown"
)

// Sentinels for errors.Is; any *Error of the same Kind matches.
var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrBusy                   = &Error{Kind: KindBusy, Message: "A save is already in progress"}
	ErrUserRejected           = &Error{Kind: KindUserRejected}
	ErrInsufficientFunds      = &Error{Kind: KindInsufficientFunds}
	ErrRemoteFunctionMismatch = &Error{Kind: KindRemoteFunctionMismatch}
	ErrUnknown                = &Error{Kind: KindUnknown}
)

// Error is a classified submission failure. Message is safe to show; Raw
// is the unmodified cause and should only be logged.
type Error struct {
	Kind    Kind
	Message string
	Raw     string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// keywordTable is matched in order against the lowercased raw message.
var keywordTable = []struct {
	kind     Kind
	keywords []string
}{
	{KindUserRejected, []string{"rejected", "denied by user", "user denied", "user cancel"}},
	{KindInsufficientFunds, []string{"insufficient", "gasbalancetoolow", "no valid gas coins", "balance too low"}},
	{KindRemoteFunctionMismatch, []string{
		"aritymismatch",
		"arity mismatch",
		"functionnotfound",
		"function not found",
		"could not resolve function",
		"typemismatch",
		"incorrect number of arguments",
	}},
}

// Classify maps a raw failure message to a Kind. The first table row with
// a matching keyword wins; no match is KindUnknown.
func Classify(raw string) Kind {
	lower := strings.ToLower(raw)
	for _, row := range keywordTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.kind
			}
		}
	}
	return KindUnknown
}

const (
	maxDisplayLen   = 120
	fallbackMessage = "An error occurred"
)

var (
	parenSegment = regexp.MustCompile(`\([^)]*\)`)
	digitRun     = regexp.MustCompile(`[0-9]+`)
	separators   = regexp.MustCompile(`[:\-]+`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Sanitize turns a raw failure into a display string with no numeric codes
// or parenthesized fragments. An unclosed "(" drops the rest of the text.
func Sanitize(raw string) string {
	msg := raw
	if i := strings.Index(msg, "|"); i >= 0 {
		msg = msg[:i]
	}
	msg = parenSegment.ReplaceAllString(msg, " ")
	if i := strings.Index(msg, "("); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.ReplaceAll(msg, ")", " ")
	msg = digitRun.ReplaceAllString(msg, "")
	msg = separators.ReplaceAllString(msg, " ")
	msg = strings.TrimSpace(whitespace.ReplaceAllString(msg, " "))
	if msg == "" {
		return fallbackMessage
	}
	if utf8.RuneCountInString(msg) > maxDisplayLen {
		runes := []rune(msg)
		msg = strings.TrimSpace(string(runes[:maxDisplayLen-3])) + "..."
	}
	return msg
}

// classifyFailure builds the surfaced error for a raw failure. The kind
// comes from the unmodified text; only the message is sanitized. When the
// node sent an error object, only its message is displayed so the RPC
// method and wrapping never reach the user.
func classifyFailure(raw string, cause error) *Error {
	display := raw
	var rpcErr *chain.RPCError
	if errors.As(cause, &rpcErr) && strings.TrimSpace(rpcErr.Message) != "" {
		display = rpcErr.Message
	}
	return &Error{Kind: Classify(raw), Message: Sanitize(display), Raw: raw, Err: cause}
}
