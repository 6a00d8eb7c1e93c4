package domain

import "errors"

var (
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrNotFound          = errors.New("not found")
	ErrTagInactive       = errors.New("blocked or recalled")
	ErrSignatureInvalid  = errors.New("invalid signature")
	ErrCounterReplay     = errors.New("counter invalid, possible clone")
	ErrMissingSecret     = errors.New("missing secret")
	ErrMissingSignature  = errors.New("missing signature")
	ErrConflict          = errors.New("update conflict")
	ErrUnavailable       = errors.New("storage unavailable")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnauthorized      = errors.New("unauthorized")
)
