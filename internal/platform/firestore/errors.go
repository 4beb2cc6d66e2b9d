package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/marketline/api/internal/repositories"
)

type errorClass int

const (
	classOther errorClass = iota
	classNotFound
	classConflict
	classUnavailable
)

// Aborted and FailedPrecondition surface when a transaction loses a race on a product's stock
// or an order's status, so callers see them as conflicts.
var codeClasses = map[codes.Code]errorClass{
	codes.NotFound:           classNotFound,
	codes.AlreadyExists:      classConflict,
	codes.FailedPrecondition: classConflict,
	codes.Aborted:            classConflict,
	codes.OutOfRange:         classConflict,
	codes.Unavailable:        classUnavailable,
	codes.ResourceExhausted:  classUnavailable,
	codes.Internal:           classUnavailable,
	codes.DeadlineExceeded:   classUnavailable,
}

// WrapError converts a Firestore error into a repositories.StoreError tagged with op. Context
// cancellations pass through untouched and errors that are already typed by the repository layer
// (stock and store errors) are returned as-is.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	st, isStatus := status.FromError(err)
	if isStatus {
		switch st.Code() {
		case codes.Canceled:
			return context.Canceled
		case codes.DeadlineExceeded:
			return context.DeadlineExceeded
		}
	}

	var storeErr *repositories.StoreError
	if errors.As(err, &storeErr) {
		if storeErr.Op == "" {
			storeErr.Op = op
		}
		return err
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		return err
	}

	wrapped := &repositories.StoreError{Op: op, Err: err}
	if isStatus {
		switch codeClasses[st.Code()] {
		case classNotFound:
			wrapped.NotFound = true
		case classConflict:
			wrapped.Conflict = true
		case classUnavailable:
			wrapped.Unavailable = true
		}
	}
	return wrapped
}
