// Package apperr defines the error taxonomy shared across the bridge
// supervisor: a small set of categories, each carrying a machine
// readable code, a wrapped cause, and whether the failure is
// recoverable by the caller (plugin.Manager.Configure uses it to tell
// a silent configure failure from one that isolates the plugin).
package apperr

import (
	"errors"
	"fmt"
)

// Category groups errors by the subsystem that raised them.
type Category string

const (
	CategoryStorage Category = "storage"
	CategoryPlugin  Category = "plugin"
	CategoryMatter  Category = "matter"
	CategoryConfig  Category = "config"
)

// Code identifies a specific failure within a category.
type Code string

const (
	// Storage codes.
	CodeNamespaceNotFound Code = "NAMESPACE_NOT_FOUND"
	CodeKeyNotFound       Code = "KEY_NOT_FOUND"
	CodeCorruptRecord     Code = "CORRUPT_RECORD"
	CodeBackupFailed      Code = "BACKUP_FAILED"
	CodeRestoreFailed     Code = "RESTORE_FAILED"

	// Plugin codes.
	CodeManifestMissing   Code = "MANIFEST_MISSING"
	CodePluginLoadError   Code = "PLUGIN_LOAD_ERROR"
	CodePluginStartError  Code = "PLUGIN_START_ERROR"
	CodeConfigureError    Code = "CONFIGURE_ERROR"
	CodeExactlyOneDevice  Code = "EXACTLY_ONE_DEVICE"
	CodeDuplicatePlugin   Code = "DUPLICATE_PLUGIN"
	CodePluginNotFound    Code = "PLUGIN_NOT_FOUND"
	CodePluginStartTimeout Code = "PLUGIN_START_TIMEOUT"

	// Matter codes.
	CodeAddEndpointError       Code = "ADD_ENDPOINT_ERROR"
	CodeServerNodeCloseTimeout Code = "SERVER_NODE_CLOSE_TIMEOUT"
	CodeServerNodeStartError   Code = "SERVER_NODE_START_ERROR"

	// Config codes.
	CodeInvalidNetworkConfig Code = "INVALID_NETWORK_CONFIG"
	CodeInvalidPairingFile   Code = "INVALID_PAIRING_FILE"
	CodePasswordHashFailed   Code = "PASSWORD_HASH_FAILED"
)

// Error is the concrete error type produced by every package in this
// module. Recoverable marks whether the operation that failed can be
// safely retried or skipped without aborting the supervisor. The
// fail-stop barrier does not read it: internal/topology checks the
// plugins' in_error state instead.
type Error struct {
	Category    Category
	Code        Code
	Message     string
	Err         error
	Recoverable bool
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Category, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Category, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(cat Category, code Code, recoverable bool, message string, err error) *Error {
	return &Error{Category: cat, Code: code, Message: message, Err: err, Recoverable: recoverable}
}

func Storage(code Code, message string, err error) *Error {
	return new_(CategoryStorage, code, false, message, err)
}

func Plugin(code Code, message string, err error, recoverable bool) *Error {
	return new_(CategoryPlugin, code, recoverable, message, err)
}

func Matter(code Code, message string, err error) *Error {
	return new_(CategoryMatter, code, false, message, err)
}

func Config(code Code, message string, err error) *Error {
	return new_(CategoryConfig, code, false, message, err)
}

// Is reports whether err is an *Error with the given code, unwrapping
// as needed. It mirrors the std errors.Is contract.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Recoverable reports whether err is a non-fatal *Error. A plain error
// (not produced by this package) is treated as unrecoverable.
func Recoverable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Recoverable
	}
	return false
}
