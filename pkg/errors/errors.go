package errors

import (
	"errors"
	"fmt"
)

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath    = fmt.Errorf("config file path cannot be empty")
	ErrConfigParse        = fmt.Errorf("failed to parse config")
	ErrConfigValidation   = fmt.Errorf("invalid configuration")
	ErrConfigEncode       = fmt.Errorf("failed to encode config")
	ErrConfigDirectory    = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate   = fmt.Errorf("failed to create config file")
	ErrConfigVersion      = fmt.Errorf("unsupported config version")
	ErrConfigFileExists   = fmt.Errorf("config file already exists")
	ErrInvalidProxy       = fmt.Errorf("invalid proxy url")
	ErrInvalidConcurrency = fmt.Errorf("concurrency limit must be at least 1")

	// Catalog errors.
	ErrCatalog          = fmt.Errorf("failed to load catalog")
	ErrNoUsableSource   = fmt.Errorf("entry has no usable source")
	ErrUnknownEntry     = fmt.Errorf("unknown wordlist")
	ErrUnsupportedProto = fmt.Errorf("unsupported source protocol")

	// ErrDestinationConflict marks a job whose destination another job of the
	// same batch writes.
	ErrDestinationConflict = fmt.Errorf("destination claimed by another entry")

	// Transfer errors.
	ErrNotFound       = fmt.Errorf("remote resource not found")
	ErrTransient      = fmt.Errorf("transient transfer failure")
	ErrPermanent      = fmt.Errorf("permanent transfer failure")
	ErrResolveFailed  = fmt.Errorf("failed to resolve download link")
	ErrAborted        = fmt.Errorf("transfer aborted")
	ErrNoPeers        = fmt.Errorf("no peers available")
	ErrMetadata       = fmt.Errorf("torrent metadata unavailable")
	ErrDuplicateSwarm = fmt.Errorf("torrent already registered by another job")

	// Post-processing errors.
	ErrInvalidChecksum   = fmt.Errorf("invalid checksum format")
	ErrChecksumMismatch  = fmt.Errorf("checksum mismatch")
	ErrUnsupportedSuffix = fmt.Errorf("no decompressor for file suffix")
	ErrUnsafePath        = fmt.Errorf("archive entry escapes destination")

	// Hook errors.
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
	ErrHookLoad      = fmt.Errorf("failed to load hook")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsConfigError reports whether err stems from invalid configuration.
// Configuration errors abort a batch before any job is started.
func IsConfigError(err error) bool {
	for _, target := range []error{
		ErrEmptyConfigPath, ErrConfigParse, ErrConfigValidation, ErrConfigVersion,
		ErrInvalidProxy, ErrInvalidConcurrency, ErrCatalog,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether a transfer failing with err may succeed on a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{
		ErrNotFound, ErrPermanent, ErrAborted, ErrResolveFailed, ErrInvalidChecksum,
		ErrNoUsableSource, ErrUnsupportedProto, ErrDuplicateSwarm,
	} {
		if errors.Is(err, target) {
			return false
		}
	}
	return true
}

// Is is errors.Is, re-exported so callers need a single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As is errors.As.
func As(err error, target any) bool { return errors.As(err, target) }

// Join is errors.Join.
func Join(errs ...error) error { return errors.Join(errs...) }
