package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness conflict.
	ErrAlreadyExists = errors.New("already exists")
	// ErrCapacity is returned when a cart cap (distinct items) would be exceeded.
	ErrCapacity = errors.New("cart capacity exceeded")
	// ErrPersistence wraps storage write failures (quota exceeded, store unavailable).
	ErrPersistence = errors.New("persistence failed")
	// ErrEmptyCart is returned when checking out an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotConfirmed is returned when an order is submitted without the confirmation step.
	ErrNotConfirmed = errors.New("order not confirmed")
	// ErrPaymentFailed is a retryable payment gateway failure. Nothing was recorded.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrIntegrity means payment succeeded but the order could not be recorded.
	ErrIntegrity = errors.New("order recording failed after payment")
)
