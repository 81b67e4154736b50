// Package vaulterrors defines the error taxonomy surfaced by the engine.
// Sentinel errors are matched with errors.Is; TransportError and
// AuthenticationError carry additional context reachable with errors.As
// without leaking it into the user-visible message for security-sensitive
// failures.
package vaulterrors

import "errors"

var (
	ErrNoKeys             = errors.New("no key files found")
	ErrBadPassword        = errors.New("wrong password or corrupted data")
	ErrUnsupportedVersion = errors.New("unsupported repository version")
	ErrBlobNotFound       = errors.New("blob not found in index")
	ErrBlobTypeMismatch   = errors.New("blob type mismatch")
	ErrPathNotFound       = errors.New("path not found")
	ErrNotADirectory      = errors.New("not a directory")
	ErrNotAFile           = errors.New("not a file")
	ErrIntegrity          = errors.New("blob integrity check failed")
	ErrSizeMismatch       = errors.New("reconstructed file size mismatch")
	ErrDecompression      = errors.New("decompression failed")
	ErrAuthentication     = errors.New("authentication failed")
	ErrFormat             = errors.New("malformed repository object")
)

// TransportError wraps any failure surfaced by the object-store adapter.
// Its Error() string includes the offending key; Unwrap reaches the
// underlying cause for errors.Is/As.
type TransportError struct {
	Key string
	Err error
}

func (e *TransportError) Error() string {
	return "transport error on " + e.Key + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// What identifies which kind of object an AuthenticationError occurred
// while decrypting.
type What string

const (
	WhatConfig   What = "config"
	WhatKeyFile  What = "key"
	WhatIndex    What = "index"
	WhatSnapshot What = "snapshot"
	WhatBlob     What = "blob"
)

// AuthenticationError records that MAC verification failed on an envelope.
// Per policy, Error() never distinguishes integrity failure from a decode
// failure nor includes the underlying cause's text — callers that need
// that detail for diagnostics use errors.As and read the Cause field
// directly rather than parsing the message.
type AuthenticationError struct {
	On    What
	Cause error
}

func (e *AuthenticationError) Error() string {
	return "wrong password or corrupted data"
}

func (e *AuthenticationError) Unwrap() error { return ErrAuthentication }

// BadPasswordError is returned by key-store unlock when every key file
// failed to authenticate. It carries the last authentication failure seen,
// not the full list of tried files, per the open protocol.
type BadPasswordError struct {
	Last error
}

func (e *BadPasswordError) Error() string {
	return "wrong password or corrupted data"
}

func (e *BadPasswordError) Unwrap() error { return ErrBadPassword }
