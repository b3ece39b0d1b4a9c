// Package haldirerr defines the structured error kinds shared by every
// Haldir verification phase, replacing the exceptions-as-control-flow style
// the teacher's schema verifiers avoided only partially (they returned a
// result struct but used fmt.Errorf wrapping for most failure detail).
// Every verification phase in this repo returns *Error (never a bare string
// error) so callers can branch on Kind without parsing messages.
package haldirerr

import "fmt"

// Kind enumerates the structured, testable error kinds named in the spec.
type Kind string

const (
	KindSchemaInvalid             Kind = "schema_invalid"
	KindPayloadMismatch           Kind = "payload_mismatch"
	KindSignatureInvalid          Kind = "signature_invalid"
	KindNoTrustedKey              Kind = "no_trusted_key"
	KindPermissionsHashMismatch   Kind = "permissions_hash_mismatch"
	KindIntegrityHashMismatch     Kind = "integrity_hash_mismatch"
	KindFileMissing               Kind = "file_missing"
	KindFileHashMismatch          Kind = "file_hash_mismatch"
	KindHardlinkViolation         Kind = "hardlink_violation"
	KindRevoked                   Kind = "revoked"
	KindRevocationStale           Kind = "revocation_stale"
	KindRevocationRolledBack      Kind = "revocation_rolled_back"
	KindSymlinkEscape             Kind = "symlink_escape"
	KindUnsafeFileType            Kind = "unsafe_file_type"
	KindSandboxSpawnFailed        Kind = "sandbox_spawn_failed"
	KindSandboxUnsupportedBackend Kind = "sandbox_unsupported_backend"
)

// Error is the structured error carried by every Haldir operation.
type Error struct {
	Kind    Kind
	Message string

	// Path or Field names the offending entry when applicable.
	Path  string
	Field string

	// Observed/Expected sequence numbers are populated for revocation kinds.
	ObservedSequence int64
	ExpectedSequence int64

	// Wrapped holds an underlying cause, if any.
	Wrapped error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("%s: %s (path=%s)", e.Kind, e.Message, e.Path)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s)", e.Kind, e.Message, e.Field)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is supports errors.Is(err, &Error{Kind: ...}) by comparing Kind only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a bare structured error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a structured error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithPath returns a copy of e with Path set.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

// Wrap builds a structured error around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: cause}
}
