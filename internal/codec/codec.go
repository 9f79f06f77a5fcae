// Package codec provides the data-protection primitives used before
// conversation data leaves the process: irreversible masking of sensitive
// substrings and symmetric encryption of serialized session payloads.
//
// All functions are stateless; callers supply patterns and keys explicitly.
package codec

import "fmt"

// RedactionToken replaces every match of a masking pattern.
const RedactionToken = "[REDACTED]"

// SecurityError marks failures in the encryption/decryption path: a missing
// or invalid key, or ciphertext that cannot be opened. It is a distinct type
// so callers can refuse to degrade to a weaker-than-requested state.
type SecurityError struct {
	msg   string
	cause error
}

func (e *SecurityError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *SecurityError) Unwrap() error { return e.cause }

func securityErr(msg string, cause error) *SecurityError {
	return &SecurityError{msg: msg, cause: cause}
}
