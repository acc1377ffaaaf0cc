package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	calls int
	bytes int64
	errs  int
}

func (o *recordingObserver) ObserveDownload(scheme string, bytes int64, err error) {
	o.calls++
	o.bytes += bytes
	if err != nil {
		o.errs++
	}
}

func TestGet_SecondCallDoesNoNetworkIO(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		fmt.Fprint(w, "payload")
	}))
	defer server.Close()

	obs := &recordingObserver{}
	c := New(server.Client()).WithObserver(obs)
	dst := filepath.Join(t.TempDir(), "snodas", "SNODAS_20200201.tar")

	downloaded, err := c.Get(context.Background(), server.URL+"/SNODAS_20200201.tar", dst, false)
	require.NoError(t, err)
	assert.True(t, downloaded)

	downloaded, err = c.Get(context.Background(), server.URL+"/SNODAS_20200201.tar", dst, false)
	require.NoError(t, err)
	assert.False(t, downloaded)

	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	assert.Equal(t, 1, obs.calls)
	assert.Equal(t, int64(len("payload")), obs.bytes)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestGet_OverwriteRefetches(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		fmt.Fprintf(w, "v%d", n)
	}))
	defer server.Close()

	c := New(server.Client())
	dst := filepath.Join(t.TempDir(), "file.bin")

	_, err := c.Get(context.Background(), server.URL, dst, false)
	require.NoError(t, err)
	downloaded, err := c.Get(context.Background(), server.URL, dst, true)
	require.NoError(t, err)
	assert.True(t, downloaded)

	data, _ := os.ReadFile(dst)
	assert.Equal(t, "v2", string(data))
}

func TestGet_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	obs := &recordingObserver{}
	c := New(server.Client()).WithObserver(obs)
	dst := filepath.Join(t.TempDir(), "missing.tar")

	_, err := c.Get(context.Background(), server.URL+"/missing.tar", dst, false)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.True(t, IsNotFound(err))
	assert.NoFileExists(t, dst)
	assert.NoFileExists(t, dst+".part")
	assert.Equal(t, 1, obs.errs)
}

func TestGet_UnsupportedScheme(t *testing.T) {
	_, err := New(nil).Get(context.Background(), "gopher://example.org/x", filepath.Join(t.TempDir(), "x"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported scheme")
}

func TestGet_SendsUserAgent(t *testing.T) {
	var ua string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.UserAgent()
	}))
	defer server.Close()

	_, err := New(server.Client()).WithUserAgent("shread-test").
		Get(context.Background(), server.URL, filepath.Join(t.TempDir(), "f"), false)
	require.NoError(t, err)
	assert.Equal(t, "shread-test", ua)
}

func TestNewDigestClient_AnswersChallenge(t *testing.T) {
	const realm, nonce = "snow", "dcd98b7102dd2f0e8b11d0f600bfb0c093"
	var challenged, authorized int32

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Digest ") {
			atomic.AddInt32(&challenged, 1)
			w.Header().Set("WWW-Authenticate",
				fmt.Sprintf(`Digest realm=%q, nonce=%q, qop="auth", algorithm=MD5`, realm, nonce))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !strings.Contains(auth, `username="jpl"`) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		atomic.AddInt32(&authorized, 1)
		fmt.Fprint(w, "tile")
	}))
	defer server.Close()

	// self-signed certificate: only works with verification disabled
	client := NewDigestClient("jpl", "secret", false, 0)
	dst := filepath.Join(t.TempDir(), "tile.tif")

	_, err := New(client).Get(context.Background(), server.URL+"/modscag/2020/032/tile.tif", dst, false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&challenged))
	assert.Equal(t, int32(1), atomic.LoadInt32(&authorized))
}

func TestNewDigestClient_VerifiesTLSByDefault(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	_, err := New(NewDigestClient("u", "p", true, 0)).
		Get(context.Background(), server.URL, filepath.Join(t.TempDir(), "f"), false)
	require.Error(t, err)
}
