package client

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindLoading Kind = iota
	KindSuccess
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindLoading:
		return "loading"
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var errUnknownFailure = errors.New("unknown failure")

// Result is the outcome of a client operation: exactly one of a value, an
// error, or still in progress.
type Result[T any] struct {
	kind  Kind
	value T
	err   error
}

func Success[T any](v T) Result[T] {
	return Result[T]{kind: KindSuccess, value: v}
}

func Failure[T any](err error) Result[T] {
	if err == nil {
		err = errUnknownFailure
	}
	return Result[T]{kind: KindFailure, err: err}
}

func Loading[T any]() Result[T] {
	return Result[T]{kind: KindLoading}
}

func (r Result[T]) Kind() Kind      { return r.kind }
func (r Result[T]) IsSuccess() bool { return r.kind == KindSuccess }
func (r Result[T]) IsFailure() bool { return r.kind == KindFailure }
func (r Result[T]) IsLoading() bool { return r.kind == KindLoading }
func (r Result[T]) Err() error      { return r.err }

// Unwrap returns the value, or the error for a failure. A loading result has
// neither and reports ErrStillLoading.
func (r Result[T]) Unwrap() (T, error) {
	switch r.kind {
	case KindSuccess:
		return r.value, nil
	case KindFailure:
		var zero T
		return zero, r.err
	default:
		var zero T
		return zero, ErrStillLoading
	}
}

var ErrStillLoading = errors.New("operation still in progress")

// Match calls exactly one handler according to the result's kind.
func Match[T, R any](r Result[T], onSuccess func(T) R, onFailure func(error) R, onLoading func() R) R {
	switch r.kind {
	case KindSuccess:
		return onSuccess(r.value)
	case KindFailure:
		return onFailure(r.err)
	default:
		return onLoading()
	}
}

func fromCall[T any](v T, err error) Result[T] {
	if err != nil {
		return Failure[T](err)
	}
	return Success(v)
}
