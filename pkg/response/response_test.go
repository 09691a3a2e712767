package response

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/stretchr/testify/require"

	"HabitPact/pkg/errors"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{errors.MissingProof, http.StatusBadRequest},
		{fmt.Errorf("%w: bad", errors.ChallengeInvalid), http.StatusBadRequest},
		{errors.TooManyRequests, http.StatusTooManyRequests},
		{errors.HabitNotFound, http.StatusNotFound},
		{errors.AlreadyCheckedIn, http.StatusConflict},
		{errors.SettlementConflict, http.StatusConflict},
		{errors.PayoutUnavailable, http.StatusServiceUnavailable},
		{errors.SettlementHashMismatch, http.StatusInternalServerError},
		{fmt.Errorf("plain failure"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			require.Equal(t, tc.want, StatusOf(tc.err))
		})
	}
}

func decode(t *testing.T, c *app.RequestContext) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(c.Response.Body(), &resp))
	return resp
}

func TestErrorBody(t *testing.T) {
	c := app.NewContext(0)
	Error(context.Background(), c, fmt.Errorf("%w: habit 12", errors.HabitArchived))
	require.Equal(t, http.StatusBadRequest, c.Response.StatusCode())
	resp := decode(t, c)
	require.Equal(t, errors.HabitArchived.Code, resp.Error.Code)
	require.Equal(t, errors.HabitArchived.Message, resp.Error.Message)
}

func TestErrorHidesIntegrityDetail(t *testing.T) {
	c := app.NewContext(0)
	Error(context.Background(), c, fmt.Errorf("%w: stored abc computed def", errors.SettlementHashMismatch))
	resp := decode(t, c)
	require.Equal(t, errors.SettlementHashMismatch.Code, resp.Error.Code)
	require.Equal(t, errors.InternalError.Message, resp.Error.Message)

	c = app.NewContext(0)
	Error(context.Background(), c, fmt.Errorf("dial tcp: connection refused"))
	resp = decode(t, c)
	require.Equal(t, errors.InternalError.Code, resp.Error.Code)
	require.NotContains(t, resp.Error.Message, "connection refused")
}
