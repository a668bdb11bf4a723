package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, "", KindOf(nil))
	require.Equal(t, KindValidation, KindOf(Required("from")))
	require.Equal(t, KindNotFound, KindOf(fmt.Errorf("load: %w", &NotFoundError{Resource: "message", ID: "x"})))
	require.Equal(t, KindBlocked, KindOf(&BlockedError{Reason: ReasonBlockedByTarget}))
	require.Equal(t, KindPersistence, KindOf(Persistence("create_message", errors.New("boom"))))
	require.Equal(t, KindInternal, KindOf(errors.New("other")))
}

func TestPersistenceKeepsSpecificKinds(t *testing.T) {
	nf := &NotFoundError{Resource: "group", ID: "g1"}
	require.Same(t, nf, Persistence("find_group", nf).(*NotFoundError))

	inner := errors.New("connection reset")
	err := Persistence("update_message", inner)
	require.ErrorIs(t, err, inner)
	require.Nil(t, Persistence("noop", nil))
}

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, HTTPStatus(Required("text")))
	require.Equal(t, http.StatusNotFound, HTTPStatus(&NotFoundError{}))
	require.Equal(t, http.StatusForbidden, HTTPStatus(&ForbiddenError{}))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("x")))
}
