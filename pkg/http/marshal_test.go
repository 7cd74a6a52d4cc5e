package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalJSONWithStatus(t *testing.T) {
	type args struct {
		i      any
		status int
	}
	type res struct {
		statusCode int
		body       string
	}
	tests := []struct {
		name string
		args args
		res  res
	}{
		{
			"empty ok",
			args{nil, 200},
			res{200, ""},
		},
		{
			"string ok",
			args{"ok", 200},
			res{200, `"ok"
`},
		},
		{
			"struct bad request",
			args{struct {
				Error string `json:"error"`
			}{"invalid_request"}, 400},
			res{400, `{"error":"invalid_request"}
`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			MarshalJSONWithStatus(w, tt.args.i, tt.args.status)
			assert.Equal(t, tt.res.statusCode, w.Result().StatusCode)
			assert.Equal(t, "application/json", w.Header().Get("content-type"))
			assert.Equal(t, tt.res.body, w.Body.String())
		})
	}
}

func TestMarshalJSONNoStore(t *testing.T) {
	w := httptest.NewRecorder()
	MarshalJSONNoStore(w, map[string]string{"error": "slow_down"}, http.StatusBadRequest)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
	assert.JSONEq(t, `{"error":"slow_down"}`, w.Body.String())
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Write([]byte("eyJhbGciOiJSUzI1NiJ9.e30.sig"))
		case "/large":
			w.Write([]byte(strings.Repeat("a", 64)))
		case "/unavailable":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	tests := []struct {
		name          string
		path          string
		want          string
		wantTemporary bool
		wantErr       error
	}{
		{
			name: "ok",
			path: "/ok",
			want: "eyJhbGciOiJSUzI1NiJ9.e30.sig",
		},
		{
			name:    "too large",
			path:    "/large",
			wantErr: ErrBodyTooLarge,
		},
		{
			name:          "server error is temporary",
			path:          "/unavailable",
			wantTemporary: true,
		},
		{
			name: "not found is permanent",
			path: "/missing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Get(context.Background(), server.Client(), server.URL+tt.path, "", 32)
			if tt.want != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, string(got))
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, tt.wantTemporary, statusErr.Temporary())
		})
	}
}
