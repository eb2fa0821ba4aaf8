package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(&Config{
		BaseURL:   server.URL,
		AIBaseURL: server.URL + "/",
		Timeout:   5 * time.Second,
	})
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, EndpointLogin, r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("bad credentials"))
			return
		}
		_, _ = w.Write([]byte(`{"token": "abc", "type": "Bearer", "username": "224789", "expiresAt": 1736150400000}`))
	})

	token, err := client.Login(context.Background(), "224789", "secret")
	require.NoError(t, err)
	assert.Equal(t, "abc", token.Token)
	assert.Equal(t, int64(1736150400000), token.ExpiresAt)

	_, err = client.Login(context.Background(), "224789", "wrong")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, EndpointLogin, se.Endpoint)
	assert.Equal(t, "bad credentials", se.Body)
}

func TestLogin_MissingToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type": "Bearer"}`))
	})

	_, err := client.Login(context.Background(), "u", "p")
	assert.Error(t, err)
	assert.False(t, IsUnauthorized(err))
}

func TestFetch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case EndpointAttendance:
			_, _ = w.Write([]byte(`{"CS1": {"present_hours": "30"}}`))
		case EndpointProfile:
			_, _ = w.Write([]byte(`{"personal_info": {"Name": "Asha"}, "academic_info": {"University Reg No": "TVE21CS001"}}`))
		case EndpointTimetable:
			_, _ = w.Write([]byte(`<html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	raw, err := client.Fetch(ctx, "abc", EndpointAttendance)
	require.NoError(t, err)
	assert.JSONEq(t, `{"CS1": {"present_hours": "30"}}`, string(raw))

	profile, raw, err := client.Profile(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Asha", profile.PersonalInfo.Name)
	assert.Equal(t, "TVE21CS001", profile.AcademicInfo.UniversityRegNo)
	assert.NotEmpty(t, raw)

	_, err = client.Fetch(ctx, "abc", EndpointTimetable)
	assert.Error(t, err)

	_, err = client.Fetch(ctx, "expired", EndpointAttendance)
	assert.True(t, IsUnauthorized(err))

	_, err = client.Fetch(ctx, "abc", EndpointResults)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.False(t, IsUnauthorized(err))
}

func TestFetch_Canceled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, "abc", EndpointAttendance)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAskAI(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"Candidates", `{"candidates": [{"content": {"parts": [{"text": "**Skip** one class"}]}}]}`, "**Skip** one class"},
		{"EmptyParts", `{"candidates": [{"content": {"parts": []}}], "response": "ignored"}`, "No response received"},
		{"PlainResponse", `{"response": "hello"}`, "hello"},
		{"Nothing", `{}`, "No response received"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, EndpointAIQuery, r.URL.Path)

				var body struct {
					Data  []map[string]any `json:"data"`
					Query string           `json:"query"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "can I skip?", body.Query)
				assert.Len(t, body.Data, 1)

				_, _ = w.Write([]byte(tt.response))
			})

			answer, err := client.AskAI(context.Background(), "can I skip?", []map[string]any{{"subject_code": "CS1"}})
			require.NoError(t, err)
			assert.Equal(t, tt.want, answer)
		})
	}
}

func TestAskAI_EmptyQuery(t *testing.T) {
	client := NewClient(nil)
	_, err := client.AskAI(context.Background(), "  ", nil)
	assert.Error(t, err)
}

func TestNewClient_Pacing(t *testing.T) {
	assert.Equal(t, 2.0, float64(NewClient(nil).limiter.Limit()))

	unpaced := NewClient(&Config{RequestsPerSecond: 0})
	assert.True(t, unpaced.limiter.Allow())
	assert.True(t, unpaced.limiter.Allow())
}
