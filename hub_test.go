package samp

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

func startHub(t *testing.T, cfg HubConfig) *Hub {
	t.Helper()
	if cfg.LockfilePath == "" {
		cfg.LockfilePath = filepath.Join(t.TempDir(), ".samp")
	}
	h := NewHub(cfg)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = h.Stop(ctx)
	})
	return h
}

func connect(t *testing.T, h *Hub, name string, mutate func(*ConnectionConfig), bind func(*HubConnection)) *HubConnection {
	t.Helper()
	lock := h.LockInfo()
	cfg := ConnectionConfig{Metadata: NewMetadata(name), Lock: &lock}
	if mutate != nil {
		mutate(&cfg)
	}
	c := NewHubConnection(cfg)
	if bind != nil {
		bind(c)
	}
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return c
}

func TestHubLockfileLifecycle(t *testing.T) {
	h := NewHub(HubConfig{LockfilePath: filepath.Join(t.TempDir(), ".samp"), Label: "test"})
	require.NoError(t, h.Start(context.Background()))
	require.NotNil(t, h.Addr())

	info, err := ReadLockfile(h.LockfilePath())
	require.NoError(t, err)
	assert.Equal(t, h.Secret(), info.Secret)
	assert.Equal(t, h.URL(), info.XMLRPCURL)
	assert.Equal(t, "test", info.Extra["hub.label"])

	require.NoError(t, h.Stop(context.Background()))
	require.NoError(t, h.Stop(context.Background()))
	_, err = os.Stat(h.LockfilePath())
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, h.Start(context.Background()), ErrHubStopped)
}

func TestHubRegistration(t *testing.T) {
	h := startHub(t, HubConfig{})
	a := connect(t, h, "alpha", nil, nil)
	b := connect(t, h, "beta", nil, nil)
	ctx := context.Background()

	assert.Equal(t, HubID, a.HubID())
	assert.NotEqual(t, a.SelfID(), b.SelfID())

	ids, err := a.GetRegisteredClients(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{HubID, b.SelfID()}, ids)

	md, err := a.GetMetadata(ctx, b.SelfID())
	require.NoError(t, err)
	assert.Equal(t, "beta", md.Name())

	hubMD, err := a.GetMetadata(ctx, HubID)
	require.NoError(t, err)
	assert.Equal(t, "Hub", hubMD.Name())

	subs, err := a.GetSubscriptions(ctx, b.SelfID())
	require.NoError(t, err)
	assert.True(t, subs.Matches(MTypePing))

	require.NoError(t, a.Ping(ctx))
	assert.Len(t, h.Clients(), 3)
}

func TestHubRejectsBadSecret(t *testing.T) {
	h := startHub(t, HubConfig{})
	lock := h.LockInfo()
	lock.Secret = "wrong"
	c := NewHubConnection(ConnectionConfig{Lock: &lock})
	assert.Error(t, c.Connect(context.Background()))
	assert.False(t, c.IsConnected())
}

func TestNotifyAllAndWildcard(t *testing.T) {
	h := startHub(t, HubConfig{})
	got := make(chan Message, 4)
	b := connect(t, h, "beta", nil, func(c *HubConnection) {
		c.BindReceiveNotification("test.*", NotificationHandlerFunc(func(_ context.Context, _ string, msg Message) error {
			got <- msg
			return nil
		}))
	})
	a := connect(t, h, "alpha", nil, nil)
	ctx := context.Background()

	ids, err := a.NotifyAll(ctx, NewMessage("test.hello", Params{"x": "1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{b.SelfID()}, ids)

	select {
	case msg := <-got:
		assert.Equal(t, "test.hello", msg.MType)
		assert.Equal(t, "1", msg.Params["x"])
	case <-time.After(waitFor):
		t.Fatal("notification not delivered")
	}

	require.NoError(t, a.Notify(ctx, b.SelfID(), NewMessage("test.direct", nil)))
	select {
	case msg := <-got:
		assert.Equal(t, "test.direct", msg.MType)
	case <-time.After(waitFor):
		t.Fatal("notification not delivered")
	}

	err = a.Notify(ctx, b.SelfID(), NewMessage("other.thing", nil))
	assert.Error(t, err)

	subscribed, err := a.GetSubscribedClients(ctx, "test.any")
	require.NoError(t, err)
	assert.Equal(t, []string{b.SelfID()}, subscribed)
}

func TestCallAndWait(t *testing.T) {
	h := startHub(t, HubConfig{})
	b := connect(t, h, "beta", nil, func(c *HubConnection) {
		c.BindReceiveCall("test.add", CallHandlerFunc(func(_ context.Context, _, _ string, msg Message) (Response, error) {
			x, _ := msg.Params.Int("x")
			y, _ := msg.Params.Int("y")
			return OKResponse(map[string]any{"sum": strconv.Itoa(x + y)}), nil
		}))
		c.BindReceiveCall("test.fail", CallHandlerFunc(func(context.Context, string, string, Message) (Response, error) {
			return Response{}, assert.AnError
		}))
	})
	a := connect(t, h, "alpha", nil, nil)
	ctx := context.Background()

	resp, err := a.CallAndWait(ctx, b.SelfID(), NewMessage("test.add", Params{"x": "2", "y": "3"}), waitFor)
	require.NoError(t, err)
	assert.True(t, resp.IsOK())
	assert.Equal(t, "5", resp.Result["sum"])

	resp, err = a.CallAndWait(ctx, b.SelfID(), NewMessage("test.fail", nil), waitFor)
	require.NoError(t, err)
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.ErrorText, assert.AnError.Error())

	resp, err = a.CallAndWait(ctx, HubID, NewMessage(MTypePing, nil), waitFor)
	require.NoError(t, err)
	assert.True(t, resp.IsOK())

	resp, err = b.CallAndWait(ctx, a.SelfID(), NewMessage(MTypePing, nil), waitFor)
	require.NoError(t, err)
	assert.True(t, resp.IsOK())

	// A client without callback lets the hub wait.
	c := connect(t, h, "gamma", func(cfg *ConnectionConfig) { cfg.NoCallback = true }, nil)
	resp, err = c.CallAndWait(ctx, b.SelfID(), NewMessage("test.add", Params{"x": "1", "y": "1"}), waitFor)
	require.NoError(t, err)
	assert.Equal(t, "2", resp.Result["sum"])
}

func TestCallAndWaitTimeout(t *testing.T) {
	h := startHub(t, HubConfig{})
	release := make(chan struct{})
	defer close(release)
	b := connect(t, h, "beta", nil, func(c *HubConnection) {
		c.BindReceiveCall("test.slow", CallHandlerFunc(func(ctx context.Context, _, _ string, _ Message) (Response, error) {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return OKResponse(nil), nil
		}))
	})
	a := connect(t, h, "alpha", nil, nil)

	_, err := a.CallAndWait(context.Background(), b.SelfID(), NewMessage("test.slow", nil), 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestDeferredReply(t *testing.T) {
	h := startHub(t, HubConfig{})
	pending := make(chan string, 1)
	b := connect(t, h, "beta", nil, func(c *HubConnection) {
		c.BindReceiveCall("test.later", CallHandlerFunc(func(_ context.Context, _, msgID string, _ Message) (Response, error) {
			pending <- msgID
			return Response{}, ErrReplyLater
		}))
	})
	a := connect(t, h, "alpha", nil, nil)
	ctx := context.Background()

	type result struct {
		resp Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := a.CallAndWait(ctx, b.SelfID(), NewMessage("test.later", nil), waitFor)
		done <- result{resp, err}
	}()

	var msgID string
	select {
	case msgID = <-pending:
	case <-time.After(waitFor):
		t.Fatal("call not delivered")
	}
	select {
	case <-done:
		t.Fatal("answered before EReply")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, b.EReply(ctx, msgID, StatusWarning, map[string]any{"n": "1"}, "partial"))
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, StatusWarning, r.resp.Status)
		assert.Equal(t, "1", r.resp.Result["n"])
		assert.Equal(t, "partial", r.resp.ErrorText)
	case <-time.After(waitFor):
		t.Fatal("deferred reply not delivered")
	}
}

func TestDeclareMetadata(t *testing.T) {
	h := startHub(t, HubConfig{})
	a := connect(t, h, "alpha", nil, nil)
	b := connect(t, h, "beta", nil, nil)
	ctx := context.Background()

	md := NewMetadata("alpha2").WithIcon("http://example.org/icon.png").WithDocumentation("http://example.org/doc")
	require.NoError(t, a.DeclareMetadata(ctx, md))
	assert.Equal(t, "alpha2", a.Metadata().Name())

	got, err := b.GetMetadata(ctx, a.SelfID())
	require.NoError(t, err)
	assert.Equal(t, "alpha2", got.Name())
	assert.Equal(t, "http://example.org/icon.png", got[MetaIconURL])
	assert.Equal(t, "http://example.org/doc", got[MetaDocumentationURL])
}

func TestAsyncCallResponse(t *testing.T) {
	h := startHub(t, HubConfig{})
	b := connect(t, h, "beta", nil, func(c *HubConnection) {
		c.BindReceiveCall("test.echo", CallHandlerFunc(func(_ context.Context, _, _ string, msg Message) (Response, error) {
			return OKResponse(map[string]any(msg.Params)), nil
		}))
	})
	type reply struct {
		from, tag string
		resp      Response
	}
	got := make(chan reply, 2)
	a := connect(t, h, "alpha", nil, func(c *HubConnection) {
		c.BindReceiveResponse(AnyTag, ResponseHandlerFunc(func(_ context.Context, from, tag string, resp Response) {
			got <- reply{from, tag, resp}
		}))
	})

	msgIDs, err := a.CallAll(context.Background(), "tag-1", NewMessage("test.echo", Params{"v": "x"}))
	require.NoError(t, err)
	require.Contains(t, msgIDs, b.SelfID())
	assert.True(t, strings.HasPrefix(msgIDs[b.SelfID()], a.SelfID()+"_"))

	select {
	case r := <-got:
		assert.Equal(t, b.SelfID(), r.from)
		assert.Equal(t, "tag-1", r.tag)
		assert.Equal(t, "x", r.resp.Result["v"])
	case <-time.After(waitFor):
		t.Fatal("response not delivered")
	}
}

func TestUnregisterEvent(t *testing.T) {
	h := startHub(t, HubConfig{})
	events := make(chan Message, 8)
	a := connect(t, h, "alpha", nil, func(c *HubConnection) {
		c.BindReceiveNotification("samp.hub.event.*", NotificationHandlerFunc(func(_ context.Context, sender string, msg Message) error {
			if sender == HubID {
				events <- msg
			}
			return nil
		}))
	})
	b := connect(t, h, "beta", nil, nil)
	bID := b.SelfID()
	require.NoError(t, b.Disconnect(context.Background()))
	assert.False(t, b.IsConnected())

	deadline := time.After(waitFor)
	for {
		select {
		case msg := <-events:
			if msg.MType == MTypeHubEventUnregister && msg.Params["id"] == bID {
				ids, err := a.GetRegisteredClients(context.Background())
				require.NoError(t, err)
				assert.NotContains(t, ids, bID)
				return
			}
		case <-deadline:
			t.Fatal("unregister event not delivered")
		}
	}
}

func TestHubShutdownNotifiesClients(t *testing.T) {
	h := NewHub(HubConfig{LockfilePath: filepath.Join(t.TempDir(), ".samp")})
	require.NoError(t, h.Start(context.Background()))

	lost := make(chan struct{})
	lock := h.LockInfo()
	c := NewHubConnection(ConnectionConfig{Lock: &lock, OnHubLost: func() { close(lost) }})
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, h.Stop(context.Background()))
	select {
	case <-lost:
	case <-time.After(waitFor):
		t.Fatal("OnHubLost not called")
	}
	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.Ping(context.Background()), ErrNotConnected)
}

func TestDispatchDuringStop(t *testing.T) {
	h := NewHub(HubConfig{LockfilePath: filepath.Join(t.TempDir(), ".samp")})
	require.NoError(t, h.Start(context.Background()))

	stop := make(chan struct{})
	spun := make(chan struct{})
	go func() {
		defer close(spun)
		for {
			select {
			case <-stop:
				return
			default:
				h.dispatch("test", "nobody", func(context.Context) error { return nil })
			}
		}
	}()
	require.NoError(t, h.Stop(context.Background()))
	close(stop)
	<-spun

	ran := make(chan struct{}, 1)
	h.dispatch("test", "nobody", func(context.Context) error {
		ran <- struct{}{}
		return nil
	})
	select {
	case <-ran:
		t.Fatal("delivery ran after stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubMetricsEndpoint(t *testing.T) {
	h := startHub(t, HubConfig{ServeMetrics: true})
	connect(t, h, "alpha", nil, nil)

	resp, err := http.Get("http://" + h.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "samp_hub_registered_clients 2")
}

func TestDiscoverViaEnvironment(t *testing.T) {
	h := startHub(t, HubConfig{})
	env := envMap(map[string]string{"SAMP_HUB": "std-lockurl:" + FileURL(h.LockfilePath())})

	c := NewHubConnection(ConnectionConfig{Getenv: env})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Disconnect(context.Background())
	assert.True(t, c.IsConnected())
}
