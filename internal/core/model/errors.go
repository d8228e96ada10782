package model

import (
	"errors"
	"fmt"
)

// Errno is the numeric error code kept in a context's last-error cell.
type Errno int

const (
	ErrInvalidOp                      Errno = 1024
	ErrInvalidOpWrongSyntax           Errno = ErrInvalidOp + 1
	ErrInvalidOpMissingArg            Errno = ErrInvalidOp + 2
	ErrInvalidOpIllegalArgValue       Errno = ErrInvalidOp + 3
	ErrInvalidOpMutuallyExclusiveArgs Errno = ErrInvalidOp + 4
	ErrInvalidOpFileNotFoundOrInvalid Errno = ErrInvalidOp + 5

	ErrCoordTransfm                        Errno = 2048
	ErrCoordTransfmInvalidCoord            Errno = ErrCoordTransfm + 1
	ErrCoordTransfmOutsideProjectionDomain Errno = ErrCoordTransfm + 2
	ErrCoordTransfmNoOperation             Errno = ErrCoordTransfm + 3
	ErrCoordTransfmOutsideGrid             Errno = ErrCoordTransfm + 4
	ErrCoordTransfmGridAtNodata            Errno = ErrCoordTransfm + 5
	ErrCoordTransfmNoConvergence           Errno = ErrCoordTransfm + 6
	ErrCoordTransfmMissingTime             Errno = ErrCoordTransfm + 7

	ErrOther             Errno = 4096
	ErrOtherAPIMisuse    Errno = ErrOther + 1
	ErrOtherNoInverseOp  Errno = ErrOther + 2
	ErrOtherNetworkError Errno = ErrOther + 3
)

var errnoText = map[Errno]string{
	ErrInvalidOp:                           "invalid PROJ string syntax",
	ErrInvalidOpWrongSyntax:                "invalid PROJ string syntax",
	ErrInvalidOpMissingArg:                 "missing required operation parameter",
	ErrInvalidOpIllegalArgValue:            "invalid value for an argument",
	ErrInvalidOpMutuallyExclusiveArgs:      "mutually exclusive arguments",
	ErrInvalidOpFileNotFoundOrInvalid:      "file not found or invalid",
	ErrCoordTransfm:                        "generic error of unknown origin",
	ErrCoordTransfmInvalidCoord:            "invalid coordinate",
	ErrCoordTransfmOutsideProjectionDomain: "point outside of projection domain",
	ErrCoordTransfmNoOperation:             "no operation found matching criteria",
	ErrCoordTransfmOutsideGrid:             "point outside of grid",
	ErrCoordTransfmGridAtNodata:            "grid node has no data",
	ErrCoordTransfmNoConvergence:           "iterative method did not converge",
	ErrCoordTransfmMissingTime:             "missing required time coordinate",
	ErrOther:                               "unclassified error",
	ErrOtherAPIMisuse:                      "API misuse",
	ErrOtherNoInverseOp:                    "no inverse operation",
	ErrOtherNetworkError:                   "network error when accessing a remote resource",
}

func (e Errno) String() string {
	if e == 0 {
		return ""
	}
	if s, ok := errnoText[e]; ok {
		return s
	}
	switch {
	case e >= ErrOther:
		return errnoText[ErrOther]
	case e >= ErrCoordTransfm:
		return errnoText[ErrCoordTransfm]
	case e >= ErrInvalidOp:
		return errnoText[ErrInvalidOp]
	}
	return fmt.Sprintf("unknown error (code %d)", int(e))
}

// Error carries a numeric code through ordinary Go error chains.
type Error struct {
	Code Errno
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return e.Msg
}

// Is matches any *Error with the same code, so errors.Is(err, &Error{Code: c}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func Errorf(code Errno, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the numeric code of err. Errors without one read as ErrOther.
func CodeOf(err error) Errno {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrOther
}
