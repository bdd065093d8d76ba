// errors.go generalizes the prior lib/store.Error/RetCode pair into the
// admin error taxonomy.
package admin

import "fmt"

// Kind is the conceptual error taxonomy.
type Kind int

const (
	// KindNotFound: referenced database is not in the registry.
	KindNotFound Kind = iota
	// KindAlreadyExists: attempted to create/restore a registered database,
	// or start ingestion while already running.
	KindAlreadyExists
	// KindInvalidArgument: malformed db name, unknown role, unparseable address.
	KindInvalidArgument
	// KindCapacity: concurrency gate exceeded.
	KindCapacity
	// KindEngine: underlying storage engine returned a failure.
	KindEngine
	// KindAdmin: any other operational failure (I/O, encoding, filesystem).
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindCapacity:
		return "Capacity"
	case KindEngine:
		return "Engine"
	case KindAdmin:
		return "Admin"
	default:
		return "Unknown"
	}
}

// Code is the external RPC error code.
type Code string

const (
	CodeDBNotFound      Code = "DB_NOT_FOUND"
	CodeDBExist         Code = "DB_EXIST"
	CodeDBError         Code = "DB_ERROR"
	CodeDBAdminError    Code = "DB_ADMIN_ERROR"
	CodeInvalidUpstream Code = "INVALID_UPSTREAM"
	CodeInvalidDBRole   Code = "INVALID_DB_ROLE"
)

// ExternalCode maps a Kind to the wire-level error code. Where a single Kind
// covers more than one external code, the finer-grained code is selected by
// the caller via InvalidArgument, which takes the code explicitly.
func (k Kind) ExternalCode() Code {
	switch k {
	case KindNotFound:
		return CodeDBNotFound
	case KindAlreadyExists:
		return CodeDBExist
	case KindEngine:
		return CodeDBError
	case KindInvalidArgument:
		return CodeInvalidUpstream
	default:
		return CodeDBAdminError
	}
}

// Error carries a Kind plus the originating operation and underlying error
// text, so operators retain the original status string.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	// Code overrides Kind.ExternalCode() when set, for the cases where one
	// Kind maps to more than one wire code (invalid role vs. invalid upstream).
	Code Code
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// ExternalCode returns e.Code if set, else the Kind's default mapping.
func (e *Error) ExternalCode() Code {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.ExternalCode()
}

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func NotFoundf(op, format string, args ...interface{}) *Error {
	return newErr(KindNotFound, op, fmt.Errorf(format, args...))
}

func AlreadyExistsf(op, format string, args ...interface{}) *Error {
	return newErr(KindAlreadyExists, op, fmt.Errorf(format, args...))
}

func InvalidArgument(op string, code Code, format string, args ...interface{}) *Error {
	e := newErr(KindInvalidArgument, op, fmt.Errorf(format, args...))
	e.Code = code
	return e
}

func Capacityf(op, format string, args ...interface{}) *Error {
	return newErr(KindCapacity, op, fmt.Errorf(format, args...))
}

func Enginef(op string, err error) *Error {
	return newErr(KindEngine, op, err)
}

func Adminf(op string, err error) *Error {
	return newErr(KindAdmin, op, err)
}

// AsError unwraps err into *Error if possible.
func AsError(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
