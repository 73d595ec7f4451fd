package apperror

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestErrorsMatchSentinelsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("leave room: %w", Conflict("room %s needs an owner", "r1"))

	require.ErrorIs(t, err, ErrConflict)
	require.NotErrorIs(t, err, ErrForbidden)
	require.Equal(t, KindConflict, KindOf(err))
	require.Equal(t, 409, HTTPStatus(err))
	require.Equal(t, "room r1 needs an owner", PublicMessage(err))
}

func TestTransientKeepsCauseAndClassification(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient(pkgerrors.Wrap(cause, "create message"))

	require.ErrorIs(t, err, ErrTransient)
	require.ErrorIs(t, err, cause)
	require.Equal(t, 503, HTTPStatus(err))
	require.Equal(t, "temporarily unavailable, please retry", PublicMessage(err))

	already := NotFound("room missing")
	require.Same(t, already, Transient(already))
	require.Nil(t, Transient(nil))
}

func TestCloseCodes(t *testing.T) {
	require.Equal(t, CloseUnauthenticated, CloseCode(Unauthenticated("no token")))
	require.Equal(t, CloseForbidden, CloseCode(Forbidden("not a participant")))
	require.Equal(t, CloseNotFound, CloseCode(NotFound("room archived")))
	require.Equal(t, CloseInternal, CloseCode(errors.New("boom")))
}
