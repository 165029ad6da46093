package xmlrpc

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCall(t *testing.T) {
	msg := map[string]any{
		"samp.mtype": "table.load.fits",
		"samp.params": map[string]any{
			"url":  "file:///tmp/a.fits",
			"name": "a & b <c>",
		},
	}
	body, err := EncodeCall("samp.hub.notifyAll", []any{"key-1", msg})
	require.NoError(t, err)

	method, params, err := DecodeCall(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, "samp.hub.notifyAll", method)
	require.Len(t, params, 2)
	assert.Equal(t, "key-1", params[0])
	assert.Equal(t, msg, params[1])
}

func TestDecodeScalars(t *testing.T) {
	doc := `<?xml version="1.0"?>
<methodCall>
  <methodName>x</methodName>
  <params>
    <param><value>untyped</value></param>
    <param><value><i4>42</i4></value></param>
    <param><value><boolean>1</boolean></value></param>
    <param><value><double>-1.5</double></value></param>
    <param><value><array><data>
      <value><string>1</string></value>
      <value>2</value>
    </data></array></value></param>
    <param><value><base64>aGk=</base64></value></param>
  </params>
</methodCall>`

	_, params, err := DecodeCall(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, params, 6)
	assert.Equal(t, "untyped", params[0])
	assert.Equal(t, 42, params[1])
	assert.Equal(t, true, params[2])
	assert.Equal(t, -1.5, params[3])
	assert.Equal(t, []any{"1", "2"}, params[4])
	assert.Equal(t, "hi", params[5])
}

func TestDecodeEmptyParams(t *testing.T) {
	method, params, err := DecodeCall(strings.NewReader(
		`<methodCall><methodName>samp.hub.ping</methodName><params/></methodCall>`))
	require.NoError(t, err)
	assert.Equal(t, "samp.hub.ping", method)
	assert.Empty(t, params)
}

func TestEncodeUnsupportedType(t *testing.T) {
	_, err := EncodeCall("x", []any{struct{}{}})
	require.Error(t, err)
}

func TestFaultRoundTrip(t *testing.T) {
	_, err := DecodeResponse(bytes.NewReader(EncodeFault(&Fault{Code: 7, String: "nope"})))
	var f *Fault
	require.True(t, errors.As(err, &f))
	assert.Equal(t, 7, f.Code)
	assert.Equal(t, "nope", f.String)
}

func TestServerAndClient(t *testing.T) {
	srv := NewServer()
	srv.Register("echo", func(_ context.Context, params []any) (any, error) {
		return params, nil
	})
	srv.Register("fail", func(_ context.Context, _ []any) (any, error) {
		return nil, errors.New("boom")
	})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	c := NewClient(ts.URL)

	got, err := c.Call(context.Background(), "echo", "a", map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", map[string]any{"k": "v"}}, got)

	_, err = c.Call(context.Background(), "fail")
	var f *Fault
	require.True(t, errors.As(err, &f))
	assert.Equal(t, FaultApplication, f.Code)
	assert.Equal(t, "boom", f.String)

	_, err = c.Call(context.Background(), "missing")
	require.True(t, errors.As(err, &f))
	assert.Equal(t, FaultMethodNotFound, f.Code)

	assert.Equal(t, []string{"echo", "fail"}, srv.Methods())
}

func TestServerRejectsGet(t *testing.T) {
	srv := NewServer()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
