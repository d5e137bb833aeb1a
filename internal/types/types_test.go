package types

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestResult_HTTPFailed(t *testing.T) {
	tests := []struct {
		name   string
		result RequestResult
		failed bool
		http   bool
	}{
		{"ok", RequestResult{Status: http.StatusOK}, false, false},
		{"redirect", RequestResult{Status: http.StatusFound}, false, false},
		{"unauthorized", RequestResult{Status: http.StatusUnauthorized}, false, true},
		{"allowed 429", RequestResult{Status: http.StatusTooManyRequests, AllowedStatuses: []int{http.StatusTooManyRequests}}, false, false},
		{"other status with allow list", RequestResult{Status: http.StatusBadGateway, AllowedStatuses: []int{http.StatusTooManyRequests}}, false, true},
		{"transport error", RequestResult{Error: "connection refused"}, true, true},
		{"no status", RequestResult{}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.failed, tt.result.Failed())
			assert.Equal(t, tt.http, tt.result.HTTPFailed())
		})
	}
}

func TestRequestResult_Envelope(t *testing.T) {
	r := RequestResult{Body: `{"apiVersion":"1.0","status":"OK","data":{"username":"abc"}}`}
	env, err := r.Envelope()
	require.NoError(t, err)
	assert.Equal(t, "OK", env.Status)
	assert.JSONEq(t, `{"username":"abc"}`, string(env.Data))
	assert.Nil(t, env.Error)

	r = RequestResult{Body: `{"apiVersion":"1.0","error":{"code":400,"message":"bad request","errors":[{"message":"username taken"}]}}`}
	env, err = r.Envelope()
	require.NoError(t, err)
	require.NotNil(t, env.Error)
	assert.Equal(t, 400, env.Error.Code)
	assert.Equal(t, "bad request: username taken", env.Error.Error())

	_, err = (&RequestResult{Body: "<html></html>"}).Envelope()
	assert.Error(t, err)
}

func TestAPIError_NilIsEmpty(t *testing.T) {
	var e *APIError
	assert.Empty(t, e.Error())
}
