package lifecycle

import "github.com/cockroachdb/errors"

var (
	ErrAlreadyExists       = errors.New("interface already exists")
	ErrNotFound            = errors.New("interface not found")
	ErrResourceUnavailable = errors.New("packet resource unavailable")
	ErrTimeout             = errors.New("packet loop did not respond in time")
	ErrInternalFault       = errors.New("packet loop failed")
)

// Kind is the outcome class of a lifecycle operation. Bindings map it to
// their own status codes.
type Kind string

const (
	KindSuccess             Kind = "success"
	KindAlreadyExists       Kind = "already_exists"
	KindNotFound            Kind = "not_found"
	KindResourceUnavailable Kind = "resource_unavailable"
	KindTimeout             Kind = "timeout"
	KindInternalFault       Kind = "internal_fault"
	KindUnknown             Kind = "unknown"
)

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindSuccess
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrResourceUnavailable):
		return KindResourceUnavailable
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrInternalFault):
		return KindInternalFault
	default:
		return KindUnknown
	}
}

func notFound(op string) error {
	return errors.Mark(errors.Newf("%s: no interface has been created", op), ErrNotFound)
}
