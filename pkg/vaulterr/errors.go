package vaulterr

import (
	"errors"
	"fmt"
)

// Code is a dotted error identifier, stable across releases so callers can
// branch on it (storage.not-found, crypto.tag-failed, and so on).
type Code string

const (
	CodeNetworkOffline     Code = "network.offline"
	CodeNetworkTimeout     Code = "network.timeout"
	CodeNetworkUnreachable Code = "network.unreachable"

	CodeStorageDiskFull   Code = "storage.disk-full"
	CodeStoragePermission Code = "storage.permission"
	CodeStorageReadFailed Code = "storage.read-failed"
	CodeStorageWriteFail  Code = "storage.write-failed"
	CodeStorageNotFound   Code = "storage.not-found"
	CodeStorageCorrupt    Code = "storage.corrupt"

	CodeSyncVaultMismatch  Code = "sync.vault-mismatch"
	CodeSyncProtocolError  Code = "sync.protocol-error"
	CodeSyncBadFrame       Code = "sync.bad-frame"
	CodeSyncBadUpdate      Code = "sync.bad-update"
	CodeSyncDocTooLarge    Code = "sync.doc-too-large"
	CodeSyncErrorLimit     Code = "sync.error-limit"
	CodeSyncSnapshotGap    Code = "snapshot-gap"
	CodeSyncVaultMismatch2 Code = "vault-mismatch"

	CodeTransportNotInit       Code = "transport.not-initialized"
	CodeTransportInvalidTicket Code = "transport.invalid-ticket"

	CodePeerUnknown         Code = "peer.unknown"
	CodePeerUntrusted       Code = "peer.untrusted"
	CodePeerDisconnected    Code = "peer.disconnected"
	CodePeerNotFound        Code = "peer.not-found"
	CodePeerGroupNotFound   Code = "peer.group-not-found"
	CodeConfigInvalid       Code = "config.invalid"
	CodeConfigMigrateFailed Code = "config.migration-failed"

	CodeCryptoKeyMissing       Code = "crypto.key-missing"
	CodeCryptoTagFailed        Code = "crypto.tag-failed"
	CodeCryptoInvalidKey       Code = "crypto.invalid-key"
	CodeCryptoVersionUnsupport Code = "crypto.version-unsupported"

	CodeBlobTooLarge Code = "blob.too-large"
	CodeBlobMissing  Code = "blob.missing"

	CodeProtocolShort       Code = "protocol.short"
	CodeProtocolUnknownType Code = "protocol.unknown-type"
	CodeProtocolBadFrame    Code = "protocol.bad-frame"
)

// Category groups codes by the subsystem that raised them.
type Category string

const (
	CategoryNetwork   Category = "network"
	CategoryStorage   Category = "storage"
	CategorySync      Category = "sync"
	CategoryTransport Category = "transport"
	CategoryPeer      Category = "peer"
	CategoryConfig    Category = "config"
	CategoryCrypto    Category = "crypto"
	CategoryBlob      Category = "blob"
	CategoryProtocol  Category = "protocol"
)

// Severity indicates how loudly a host application should surface the error.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type attrs struct {
	category    Category
	severity    Severity
	recoverable bool
}

var codeAttrs = map[Code]attrs{
	CodeNetworkOffline:         {CategoryNetwork, SeverityWarning, true},
	CodeNetworkTimeout:         {CategoryNetwork, SeverityWarning, true},
	CodeNetworkUnreachable:     {CategoryNetwork, SeverityWarning, true},
	CodeStorageDiskFull:        {CategoryStorage, SeverityCritical, false},
	CodeStoragePermission:      {CategoryStorage, SeverityCritical, false},
	CodeStorageReadFailed:      {CategoryStorage, SeverityError, true},
	CodeStorageWriteFail:       {CategoryStorage, SeverityError, true},
	CodeStorageNotFound:        {CategoryStorage, SeverityInfo, true},
	CodeStorageCorrupt:         {CategoryStorage, SeverityCritical, false},
	CodeSyncVaultMismatch:      {CategorySync, SeverityError, false},
	CodeSyncProtocolError:      {CategorySync, SeverityError, true},
	CodeSyncBadFrame:           {CategorySync, SeverityError, true},
	CodeSyncBadUpdate:          {CategorySync, SeverityWarning, true},
	CodeSyncDocTooLarge:        {CategorySync, SeverityError, false},
	CodeSyncErrorLimit:         {CategorySync, SeverityError, false},
	CodeSyncSnapshotGap:        {CategorySync, SeverityWarning, true},
	CodeSyncVaultMismatch2:     {CategorySync, SeverityError, false},
	CodeTransportNotInit:       {CategoryTransport, SeverityError, false},
	CodeTransportInvalidTicket: {CategoryTransport, SeverityWarning, true},
	CodePeerUnknown:            {CategoryPeer, SeverityInfo, true},
	CodePeerUntrusted:          {CategoryPeer, SeverityWarning, true},
	CodePeerDisconnected:       {CategoryPeer, SeverityInfo, true},
	CodePeerNotFound:           {CategoryPeer, SeverityInfo, true},
	CodePeerGroupNotFound:      {CategoryPeer, SeverityInfo, true},
	CodeConfigInvalid:          {CategoryConfig, SeverityCritical, false},
	CodeConfigMigrateFailed:    {CategoryConfig, SeverityCritical, false},
	CodeCryptoKeyMissing:       {CategoryCrypto, SeverityCritical, false},
	CodeCryptoTagFailed:        {CategoryCrypto, SeverityCritical, false},
	CodeCryptoInvalidKey:       {CategoryCrypto, SeverityCritical, false},
	CodeCryptoVersionUnsupport: {CategoryCrypto, SeverityCritical, false},
	CodeBlobTooLarge:           {CategoryBlob, SeverityWarning, true},
	CodeBlobMissing:            {CategoryBlob, SeverityInfo, true},
	CodeProtocolShort:          {CategoryProtocol, SeverityError, true},
	CodeProtocolUnknownType:    {CategoryProtocol, SeverityError, true},
	CodeProtocolBadFrame:       {CategoryProtocol, SeverityError, true},
}

// Error is the error type returned across package boundaries in peervault.
type Error struct {
	Code    Code
	Message string
	Context map[string]string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Category returns the error's subsystem category, derived from its code.
func (e *Error) Category() Category { return codeAttrs[e.Code].category }

// Severity returns how loudly this error should be surfaced.
func (e *Error) Severity() Severity { return codeAttrs[e.Code].severity }

// Recoverable reports whether the caller can reasonably retry or continue.
func (e *Error) Recoverable() bool { return codeAttrs[e.Code].recoverable }

// New creates an *Error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code to an underlying error, preserving it for errors.Is/As.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Wrapped: err}
}

// WithContext returns a copy of e with an additional context field set.
func (e *Error) WithContext(key, value string) *Error {
	cp := *e
	cp.Context = make(map[string]string, len(e.Context)+1)
	for k, v := range e.Context {
		cp.Context[k] = v
	}
	cp.Context[key] = value
	return &cp
}

// Is reports whether target is a *Error with the same Code, so
// errors.Is(err, vaulterr.New(CodeBlobMissing, "")) matches regardless of
// message or context.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// HasCode reports whether err is (or wraps) a *Error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

// CodeOf returns err's Code if it is (or wraps) an *Error, or "unknown" otherwise.
// Used for metric labels, where an unclassified error still needs a value.
func CodeOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "unknown"
	}
	return string(e.Code)
}
