package client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func describe(r Result[int]) string {
	return Match(r,
		func(v int) string { return "value" },
		func(err error) string { return "error: " + err.Error() },
		func() string { return "loading" },
	)
}

func TestResult_Match(t *testing.T) {
	boom := errors.New("boom")

	assert.Equal(t, "value", describe(Success(7)))
	assert.Equal(t, "error: boom", describe(Failure[int](boom)))
	assert.Equal(t, "loading", describe(Loading[int]()))
}

func TestResult_Unwrap(t *testing.T) {
	v, err := Success("ok").Unwrap()
	assert.NoError(t, err)
	assert.Equal(t, "ok", v)

	boom := errors.New("boom")
	v, err = Failure[string](boom).Unwrap()
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, v)

	_, err = Loading[string]().Unwrap()
	assert.ErrorIs(t, err, ErrStillLoading)
}

func TestResult_Kinds(t *testing.T) {
	assert.True(t, Success(1).IsSuccess())
	assert.True(t, Failure[int](nil).IsFailure())
	assert.Error(t, Failure[int](nil).Err())
	assert.True(t, Loading[int]().IsLoading())
	assert.Equal(t, "failure", KindFailure.String())
}
