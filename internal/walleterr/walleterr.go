package walleterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies failures surfaced by the wallet.
type Kind string

const (
	KindChainMismatch     Kind = "CHAIN_MISMATCH"
	KindSigning           Kind = "SIGNING_ERROR"
	KindNetwork           Kind = "NETWORK_ERROR"
	KindProtocolViolation Kind = "PROTOCOL_VIOLATION"
)

// JSON-RPC error codes used in rejection frames.
const (
	CodeInvalidParams    = -32602
	CodeMethodNotFound   = -32601
	CodeInternal         = -32603
	CodeServer           = -32000
	CodeTransactionError = -32003
	CodeUnsupportedChain = 4901
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrChainMismatch     = &Error{Kind: KindChainMismatch}
	ErrSigning           = &Error{Kind: KindSigning}
	ErrNetwork           = &Error{Kind: KindNetwork}
	ErrProtocolViolation = &Error{Kind: KindProtocolViolation}
)

// Error is a classified wallet error. Message is what the peer gets to see.
type Error struct {
	Kind    Kind
	Message string
	// TxHash is set when a transaction left the wallet before the failure,
	// meaning the outcome on chain is unknown.
	TxHash string
	// Code overrides the JSON-RPC code derived from Kind.
	Code  int
	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches sentinels (no message) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error) //nolint:errorlint // sentinel comparison by kind
	if !ok || t == nil {
		return false
	}
	if t.Message != "" {
		return t == e
	}
	return t.Kind == e.Kind
}

// Ambiguous reports whether a transaction may have been broadcast.
func (e *Error) Ambiguous() bool {
	return e != nil && e.TxHash != ""
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if msg == "" && cause != nil {
		msg = rootMessage(cause)
	}
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// ChainMismatch reports a session proposal for a chain other than the identity's.
func ChainMismatch(proposed, expected int64) *Error {
	return newError(KindChainMismatch, nil, "invalid chain id %d for session request, expected %d", proposed, expected)
}

// Signing wraps a failure of the key to produce a signature.
func Signing(cause error, format string, args ...any) *Error {
	return newError(KindSigning, cause, format, args...)
}

// Network wraps a broadcast, confirmation or relay failure.
func Network(cause error, format string, args ...any) *Error {
	return newError(KindNetwork, cause, format, args...)
}

// Protocol reports a malformed or unexpected frame.
func Protocol(format string, args ...any) *Error {
	return newError(KindProtocolViolation, nil, format, args...)
}

// WithTxHash marks err as possibly broadcast under hash.
func WithTxHash(err *Error, hash string) *Error {
	err.TxHash = hash
	return err
}

// WithCode sets the JSON-RPC code reported for err.
func WithCode(err *Error, code int) *Error {
	err.Code = code
	return err
}

// FromError extracts the classified error from err's chain.
func FromError(err error) (*Error, bool) {
	var walletErr *Error
	if errors.As(err, &walletErr) {
		return walletErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or an empty kind for unclassified errors.
func KindOf(err error) Kind {
	if walletErr, ok := FromError(err); ok {
		return walletErr.Kind
	}
	return ""
}

// MessageOf returns the message a peer should see for err: the classified
// message when there is one, otherwise the innermost cause.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	if walletErr, ok := FromError(err); ok && walletErr.Message != "" {
		return walletErr.Message
	}
	return rootMessage(err)
}

// CodeOf maps err to a JSON-RPC error code.
func CodeOf(err error) int {
	if walletErr, ok := FromError(err); ok && walletErr.Code != 0 {
		return walletErr.Code
	}

	switch KindOf(err) {
	case KindProtocolViolation:
		return CodeInvalidParams
	case KindChainMismatch:
		return CodeUnsupportedChain
	case KindNetwork:
		return CodeTransactionError
	case KindSigning:
		return CodeServer
	default:
		return CodeInternal
	}
}

func rootMessage(err error) string {
	return errors.Cause(err).Error()
}
