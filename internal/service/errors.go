package service

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidState     = errors.New("invalid contract state")
	ErrInvalidSignature = errors.New("invalid payment signature")
	ErrUpstream         = errors.New("upstream service failure")

	ErrContractNumberExhausted = errors.New("failed to generate unique contract number after retries")
)
