package http_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infrahttp "github.com/wepublish/dorfkoenig/infrastructure/http"
	"github.com/wepublish/dorfkoenig/infrastructure/netguard"
)

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()

	client := infrahttp.NewClient(nil)
	assert.Equal(t, infrahttp.DefaultTimeout, client.Timeout)

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, infrahttp.DefaultMaxIdleConnsPerHost, transport.MaxIdleConnsPerHost)
	assert.NotNil(t, transport.Proxy)
}

func TestNewClient_DialControlRefusesLoopback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("secret"))
	}))
	defer srv.Close()

	client := infrahttp.NewClient(&infrahttp.ClientConfig{DialControl: netguard.DialControl})
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, transport.Proxy)

	resp, err := client.Get(srv.URL)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, netguard.ErrPrivateAddress)
}
