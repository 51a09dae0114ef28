package tango

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tangofs/tangofs/pkg/errors"
)

func newTestClient(t *testing.T, handler http.Handler) (*RESTClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRESTClient(RESTConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, nil), srv
}

func TestServers(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/servers", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode([]string{"TangoTest", "Starter"})
	}))

	names, err := client.Servers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"TangoTest", "Starter"}, names)
}

func TestProperty(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/devices/sys%2Ftg_test%2F1/properties/someProperty", r.URL.EscapedPath())
		json.NewEncoder(w).Encode(propertyDoc{Name: "someProperty", Values: []string{"abc", "def"}})
	}))

	lines, err := client.Property(context.Background(), "sys/tg_test/1", "someProperty")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "def"}, lines)
}

func TestSetProperty(t *testing.T) {
	var got propertyDoc
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	err := client.SetProperty(context.Background(), "sys/tg_test/1", "someProperty", []string{"Hello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello"}, got.Values)
}

func TestReadAttribute(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/devices/sys%2Ftg_test%2F1/attributes/A/value", r.URL.EscapedPath())
		json.NewEncoder(w).Encode(attributeValueDoc{
			Name: "A", Format: "SCALAR", Values: []string{"45.6"}, DimX: 1,
		})
	}))

	val, err := client.ReadAttribute(context.Background(), "sys/tg_test/1", "A")
	require.NoError(t, err)
	assert.Equal(t, FormatScalar, val.Format)
	assert.Equal(t, []string{"45.6"}, val.Values)
}

func TestAttributes_ParsesConfig(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]attributeDoc{
			{Name: "ampli", DataType: "DevDouble", DataFormat: "SCALAR", Writable: "READ_WRITE", DisplayLevel: "OPERATOR", Unit: "V"},
			{Name: "wave", DataType: "DevDouble", DataFormat: "SPECTRUM", Writable: "READ", DisplayLevel: "EXPERT", MaxDimX: 256},
		})
	}))

	infos, err := client.Attributes(context.Background(), "sys/tg_test/1")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, WriteTypeReadWrite, infos[0].Writable)
	assert.True(t, infos[0].Writable.Writable())
	assert.Equal(t, FormatSpectrum, infos[1].DataFormat)
	assert.Equal(t, DisplayExpert, infos[1].DisplayLevel)
	assert.Equal(t, 256, infos[1].MaxDimX)
}

func TestExecuteCommand(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		json.NewEncoder(w).Encode(commandResultDoc{Output: "ON"})
	}))

	out, err := client.ExecuteCommand(context.Background(), "sys/tg_test/1", "State")
	require.NoError(t, err)
	assert.Equal(t, "ON", out)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    errors.Kind
	}{
		{
			name: "404 maps to not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want: errors.KindNotFound,
		},
		{
			name: "device error maps to remote rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(gatewayError{Errors: []struct {
					Reason      string `json:"reason"`
					Description string `json:"description"`
				}{{Reason: "API_DeviceNotExported"}}})
			},
			want: errors.KindRemoteRejected,
		},
		{
			name: "gateway failure maps to remote unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: errors.KindRemoteUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, tt.handler)
			_, err := client.Servers(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.KindOf(err))
		})
	}
}

func TestConnectionRefusedMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewRESTClient(RESTConfig{BaseURL: url, Timeout: time.Second}, nil)
	_, err := client.Servers(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindRemoteUnavailable, errors.KindOf(err))
}
