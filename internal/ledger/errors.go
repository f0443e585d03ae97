package ledger

import (
	"errors"
	"net/http"

	errorsmod "cosmossdk.io/errors"
)

// Codespace scopes the registered marketplace error codes.
const Codespace = "market"

var (
	ErrInvalidInput        = errorsmod.Register(Codespace, 2, "invalid input")
	ErrNotFound            = errorsmod.Register(Codespace, 3, "not found")
	ErrAlreadyTerminal     = errorsmod.Register(Codespace, 4, "job already terminal")
	ErrUpstreamUnavailable = errorsmod.Register(Codespace, 5, "upstream unavailable")
	ErrInvalidTransaction  = errorsmod.Register(Codespace, 6, "invalid transaction")
)

// HTTPStatus maps an error from the taxonomy onto a response status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidTransaction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// taxonomy lists InvalidTransaction ahead of InvalidInput so a transaction
// rejected for a bad amount reports the narrower code.
var taxonomy = []*errorsmod.Error{
	ErrInvalidTransaction, ErrInvalidInput, ErrNotFound, ErrAlreadyTerminal, ErrUpstreamUnavailable,
}

// ErrorCode returns the registered code for err, or zero when err is not
// part of the taxonomy.
func ErrorCode(err error) uint32 {
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return known.ABCICode()
		}
	}
	return 0
}

// ErrorForCode returns the registered error carrying code, or nil.
func ErrorForCode(code uint32) error {
	for _, known := range taxonomy {
		if known.ABCICode() == code {
			return known
		}
	}
	return nil
}

// ErrorForStatus is the inverse of HTTPStatus, used by clients decoding
// error responses.
func ErrorForStatus(status int) error {
	switch status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyTerminal
	}
	if status >= 400 && status < 500 {
		return ErrInvalidInput
	}
	return ErrUpstreamUnavailable
}
