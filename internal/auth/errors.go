package auth

import (
	"errors"

	"github.com/samber/oops"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrEmailTaken        = errors.New("email is already registered")
	ErrForbidden         = errors.New("you are not authorized to view this page")
	ErrNotAuthenticated  = errors.New("not authenticated")
)

// CodeStoreFault marks errors from an unreachable or failing credential or
// session store.
const CodeStoreFault = "STORE_FAULT"

func storeFault(op string, err error) error {
	return oops.Code(CodeStoreFault).With("operation", op).Wrap(err)
}

func IsStoreFault(err error) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == CodeStoreFault
}
