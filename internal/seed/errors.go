package seed

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Error categories. Every error produced by the pipeline is marked with
// exactly one of these; use Classify or errors.Is to branch on them.
var (
	// ErrConfiguration marks plan or capability problems detected before the
	// store is touched. Fatal.
	ErrConfiguration = errors.New("configuration error")
	// ErrConnectivity marks loss of the target store. Fatal.
	ErrConnectivity = errors.New("store connectivity lost")
	// ErrUnresolvedReference marks a required foreign key that did not resolve.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrDuplicateSourceKey marks a source key already mapped to another store key.
	ErrDuplicateSourceKey = errors.New("duplicate source key")
	// ErrMalformedRecord marks a structural or type mismatch in a record.
	ErrMalformedRecord = errors.New("malformed record")
)

// Kind is the category of a pipeline error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindConnectivity
	KindCanceled
	KindUnresolvedReference
	KindDuplicateSourceKey
	KindMalformedRecord
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindConnectivity:
		return "ConnectivityError"
	case KindCanceled:
		return "Canceled"
	case KindUnresolvedReference:
		return "UnresolvedReference"
	case KindDuplicateSourceKey:
		return "DuplicateSourceKey"
	case KindMalformedRecord:
		return "MalformedRecord"
	default:
		return "Unknown"
	}
}

// Fatal reports whether errors of this kind halt the run.
func (k Kind) Fatal() bool {
	switch k {
	case KindConfiguration, KindConnectivity, KindCanceled, KindUnknown:
		return true
	default:
		return false
	}
}

// Classify maps err to its category. Nil maps to KindUnknown.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrConnectivity):
		return KindConnectivity
	case errors.Is(err, ErrUnresolvedReference):
		return KindUnresolvedReference
	case errors.Is(err, ErrDuplicateSourceKey):
		return KindDuplicateSourceKey
	case errors.Is(err, ErrMalformedRecord):
		return KindMalformedRecord
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindUnknown
	}
}

func configurationErrorf(format string, args ...any) error {
	err := errors.Newf(format, args...)
	err = errors.WithHint(err, "fix the entity plan or store configuration and re-run; the store was not modified")
	return errors.Mark(err, ErrConfiguration)
}

func connectivityError(err error, op string) error {
	err = errors.Wrapf(err, "%s", op)
	err = errors.WithHint(err, "check the target store and re-run the seed after a full wipe")
	return errors.Mark(err, ErrConnectivity)
}

func unresolvedf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnresolvedReference)
}

func duplicatef(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrDuplicateSourceKey)
}

func malformedf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedRecord)
}

func malformed(err error, op string) error {
	return errors.Mark(errors.Wrapf(err, "%s", op), ErrMalformedRecord)
}
