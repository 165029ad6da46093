package samp

import (
	"context"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/NotrixInc/nx-samp/xmlrpc"
)

// NotificationHandler receives notifications for a bound MType pattern.
type NotificationHandler interface {
	ReceiveNotification(ctx context.Context, senderID string, msg Message) error
}

// NotificationHandlerFunc is a function-based NotificationHandler.
type NotificationHandlerFunc func(ctx context.Context, senderID string, msg Message) error

func (f NotificationHandlerFunc) ReceiveNotification(ctx context.Context, senderID string, msg Message) error {
	return f(ctx, senderID, msg)
}

// CallHandler answers calls for a bound MType pattern. The returned Response is
// sent back to the caller; an error becomes a samp.error response.
type CallHandler interface {
	ReceiveCall(ctx context.Context, senderID, msgID string, msg Message) (Response, error)
}

// CallHandlerFunc is a function-based CallHandler.
type CallHandlerFunc func(ctx context.Context, senderID, msgID string, msg Message) (Response, error)

func (f CallHandlerFunc) ReceiveCall(ctx context.Context, senderID, msgID string, msg Message) (Response, error) {
	return f(ctx, senderID, msgID, msg)
}

// ResponseHandler receives responses to asynchronous calls made with Call or CallAll.
type ResponseHandler interface {
	ReceiveResponse(ctx context.Context, responderID, msgTag string, resp Response)
}

// ResponseHandlerFunc is a function-based ResponseHandler.
type ResponseHandlerFunc func(ctx context.Context, responderID, msgTag string, resp Response)

func (f ResponseHandlerFunc) ReceiveResponse(ctx context.Context, responderID, msgTag string, resp Response) {
	f(ctx, responderID, msgTag, resp)
}

// AnyTag binds a ResponseHandler for responses whose tag has no specific handler.
const AnyTag = "*"

// ConnectionConfig holds configuration for a HubConnection.
type ConnectionConfig struct {
	Metadata Metadata

	// Lock bypasses hub discovery.
	Lock *LockInfo
	// Getenv is used for hub discovery (default os.Getenv).
	Getenv func(string) string

	// CallbackAddr is where the callback endpoint listens (default 127.0.0.1:0).
	CallbackAddr string
	// NoCallback registers a non-callable client: it can send but not receive.
	NoCallback bool

	HTTPClient *http.Client
	Logger     Logger

	// HeartbeatInterval enables periodic hub pings (0 disables).
	HeartbeatInterval time.Duration
	// MaxMissedHeartbeats before the hub is considered lost (default 3).
	MaxMissedHeartbeats int
	// OnHubLost fires when the hub shuts down or stops answering pings.
	OnHubLost func()

	// CallTimeout bounds call handlers and the reply sent for them (default 30s).
	CallTimeout time.Duration
}

// HubConnection is a registered SAMP client.
type HubConnection struct {
	cfg    ConnectionConfig
	logger Logger
	rpc    *xmlrpc.Server

	connMu sync.Mutex

	mu          sync.RWMutex
	hub         *xmlrpc.Client
	privateKey  string
	selfID      string
	hubID       string
	connected   bool
	server      *http.Server
	callbackURL string
	heartbeat   *Heartbeat
	metadata    Metadata

	handlersMu    sync.RWMutex
	notifications map[string][]NotificationHandler
	calls         map[string][]CallHandler
	responses     map[string]ResponseHandler

	pendingMu sync.Mutex
	pending   map[string]chan Response // msg tag -> waiter

	wg sync.WaitGroup
}

// NewHubConnection creates an unconnected client.
func NewHubConnection(cfg ConnectionConfig) *HubConnection {
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	if cfg.MaxMissedHeartbeats <= 0 {
		cfg.MaxMissedHeartbeats = 3
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	md := cfg.Metadata.Clone()

	c := &HubConnection{
		cfg:           cfg,
		logger:        orNop(cfg.Logger),
		rpc:           xmlrpc.NewServer(),
		metadata:      md,
		notifications: make(map[string][]NotificationHandler),
		calls:         make(map[string][]CallHandler),
		responses:     make(map[string]ResponseHandler),
		pending:       make(map[string]chan Response),
	}

	c.rpc.Register("samp.client.receiveNotification", c.receiveNotification)
	c.rpc.Register("samp.client.receiveCall", c.receiveCall)
	c.rpc.Register("samp.client.receiveResponse", c.receiveResponse)

	c.calls[MTypePing] = []CallHandler{CallHandlerFunc(func(context.Context, string, string, Message) (Response, error) {
		return OKResponse(nil), nil
	})}
	lost := NotificationHandlerFunc(func(_ context.Context, senderID string, msg Message) error {
		if senderID == c.HubID() {
			go c.hubLost(msg.MType)
		}
		return nil
	})
	c.notifications[MTypeHubEventShutdown] = []NotificationHandler{lost}
	c.notifications[MTypeHubDisconnect] = []NotificationHandler{lost}
	return c
}

// IsConnected reports whether the client is registered with a hub.
func (c *HubConnection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SelfID returns the public id assigned by the hub.
func (c *HubConnection) SelfID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selfID
}

// HubID returns the public id of the hub.
func (c *HubConnection) HubID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hubID
}

// Metadata returns a copy of the declared metadata.
func (c *HubConnection) Metadata() Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.metadata.Clone()
}

// Heartbeat returns the running heartbeat, or nil.
func (c *HubConnection) Heartbeat() *Heartbeat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heartbeat
}

func (c *HubConnection) lockInfo() (LockInfo, error) {
	if c.cfg.Lock != nil {
		return *c.cfg.Lock, nil
	}
	return DiscoverHub(c.cfg.Getenv)
}

// Connect registers with the hub, starts the callback endpoint and declares
// metadata and subscriptions. Connecting an already connected client is a no-op.
func (c *HubConnection) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.IsConnected() {
		return nil
	}

	lock, err := c.lockInfo()
	if err != nil {
		return err
	}
	hub := xmlrpc.NewClient(lock.XMLRPCURL, xmlrpc.WithHTTPClient(c.cfg.HTTPClient))

	res, err := hub.Call(ctx, "samp.hub.register", lock.Secret)
	if err != nil {
		return errors.Wrap(err, "register with hub")
	}
	reg, _ := res.(map[string]any)
	key, _ := reg["samp.private-key"].(string)
	selfID, _ := reg["samp.self-id"].(string)
	hubID, _ := reg["samp.hub-id"].(string)
	if key == "" || selfID == "" {
		return errors.Errorf("malformed registration response: %v", res)
	}

	c.mu.Lock()
	c.hub = hub
	c.privateKey = key
	c.selfID = selfID
	c.hubID = hubID
	c.mu.Unlock()

	if err := c.completeRegistration(ctx, hub, key); err != nil {
		_, _ = hub.Call(ctx, "samp.hub.unregister", key)
		c.stopCallbackServer(ctx)
		c.reset()
		return err
	}

	c.mu.Lock()
	c.connected = true
	if c.cfg.HeartbeatInterval > 0 {
		c.heartbeat = NewHeartbeat(c.cfg.HeartbeatInterval, c.Ping, HeartbeatOptions{
			Logger:    c.logger,
			MaxMisses: c.cfg.MaxMissedHeartbeats,
			OnLost: func(int) {
				go c.hubLost("heartbeat")
			},
		})
		c.heartbeat.Start(context.Background())
	}
	c.mu.Unlock()

	c.logger.Info("connected to hub", "self_id", selfID, "hub", lock.XMLRPCURL)
	return nil
}

func (c *HubConnection) completeRegistration(ctx context.Context, hub *xmlrpc.Client, key string) error {
	if !c.cfg.NoCallback {
		url, err := c.startCallbackServer()
		if err != nil {
			return err
		}
		if _, err := hub.Call(ctx, "samp.hub.setXmlrpcCallback", key, url); err != nil {
			return errors.Wrap(err, "set callback")
		}
	}

	if md := c.Metadata(); len(md) > 0 {
		if _, err := hub.Call(ctx, "samp.hub.declareMetadata", key, md.wire()); err != nil {
			return errors.Wrap(err, "declare metadata")
		}
	}

	if !c.cfg.NoCallback {
		if _, err := hub.Call(ctx, "samp.hub.declareSubscriptions", key, c.Subscriptions().wire()); err != nil {
			return errors.Wrap(err, "declare subscriptions")
		}
	}
	return nil
}

func (c *HubConnection) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hub = nil
	c.privateKey = ""
	c.selfID = ""
	c.hubID = ""
	c.connected = false
}

// Disconnect unregisters from the hub and stops the callback endpoint. It is a
// no-op when not connected.
func (c *HubConnection) Disconnect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	hub, key := c.hub, c.privateKey
	hb := c.heartbeat
	c.heartbeat = nil
	c.connected = false
	c.mu.Unlock()

	if hb != nil {
		hb.Stop()
	}
	_, err := hub.Call(ctx, "samp.hub.unregister", key)
	c.stopCallbackServer(ctx)
	c.failPending("disconnected")
	c.reset()
	c.logger.Info("disconnected from hub")
	if err != nil {
		return errors.Wrap(err, "unregister")
	}
	return nil
}

// hubLost tears the connection down without talking to the hub.
func (c *HubConnection) hubLost(reason string) {
	c.connMu.Lock()
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		c.connMu.Unlock()
		return
	}
	hb := c.heartbeat
	c.heartbeat = nil
	c.connected = false
	c.mu.Unlock()

	if hb != nil {
		hb.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	c.stopCallbackServer(ctx)
	cancel()
	c.failPending("hub lost")
	c.reset()
	c.connMu.Unlock()

	c.logger.Warn("hub lost", "reason", reason)
	if c.cfg.OnHubLost != nil {
		c.cfg.OnHubLost()
	}
}

func (c *HubConnection) startCallbackServer() (string, error) {
	addr := listenAddr(c.cfg.CallbackAddr)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", errors.Wrapf(err, "listen for callbacks on %s", addr)
	}

	router := mux.NewRouter()
	router.Handle("/xmlrpc", c.rpc).Methods(http.MethodPost)
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.Error("callback server stopped", "err", err.Error())
		}
	}()

	url := "http://" + reachableAddr(ln.Addr()) + "/xmlrpc"
	c.mu.Lock()
	c.server = srv
	c.callbackURL = url
	c.mu.Unlock()
	return url, nil
}

// reachableAddr replaces an unspecified listen host with loopback.
func reachableAddr(a net.Addr) string {
	host, port, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func (c *HubConnection) stopCallbackServer(ctx context.Context) {
	c.mu.Lock()
	srv := c.server
	c.server = nil
	c.callbackURL = ""
	c.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		c.logger.Debug("callback server shutdown", "err", err.Error())
	}
	c.wg.Wait()
}

func (c *HubConnection) failPending(reason string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for tag, ch := range c.pending {
		select {
		case ch <- ErrorResponse(reason):
		default:
		}
		delete(c.pending, tag)
	}
}

// BindReceiveNotification registers h for notifications matching mtype.
func (c *HubConnection) BindReceiveNotification(mtype string, h NotificationHandler) {
	c.handlersMu.Lock()
	c.notifications[mtype] = append(c.notifications[mtype], h)
	c.handlersMu.Unlock()
	c.redeclareSubscriptions()
}

// BindReceiveCall registers h for calls matching mtype. For a given call only
// the first matching handler answers; exact bindings win over wildcards.
func (c *HubConnection) BindReceiveCall(mtype string, h CallHandler) {
	c.handlersMu.Lock()
	c.calls[mtype] = append(c.calls[mtype], h)
	c.handlersMu.Unlock()
	c.redeclareSubscriptions()
}

// BindReceiveResponse registers h for responses carrying msgTag, or AnyTag.
func (c *HubConnection) BindReceiveResponse(msgTag string, h ResponseHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.responses[msgTag] = h
}

// Subscriptions returns the MType patterns the bound handlers cover.
func (c *HubConnection) Subscriptions() Subscriptions {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	subs := Subscriptions{}
	for mtype := range c.notifications {
		subs[mtype] = map[string]any{}
	}
	for mtype := range c.calls {
		subs[mtype] = map[string]any{}
	}
	return subs
}

func (c *HubConnection) redeclareSubscriptions() {
	if !c.IsConnected() || c.cfg.NoCallback {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := c.hubCall(ctx, "samp.hub.declareSubscriptions", c.Subscriptions().wire()); err != nil {
		c.logger.Warn("redeclare subscriptions failed", "err", err.Error())
	}
}

// DeclareMetadata replaces the metadata, declaring it at once when connected.
func (c *HubConnection) DeclareMetadata(ctx context.Context, md Metadata) error {
	c.mu.Lock()
	c.metadata = md.Clone()
	c.mu.Unlock()
	if !c.IsConnected() {
		return nil
	}
	_, err := c.hubCall(ctx, "samp.hub.declareMetadata", md.wire())
	return err
}

// hubCall invokes a samp.hub method with the private key as first argument.
func (c *HubConnection) hubCall(ctx context.Context, method string, args ...any) (any, error) {
	c.mu.RLock()
	hub, key := c.hub, c.privateKey
	c.mu.RUnlock()
	if hub == nil || key == "" {
		return nil, ErrNotConnected
	}
	params := append([]any{key}, args...)
	res, err := hub.Call(ctx, method, params...)
	if err != nil {
		return nil, errors.Wrap(err, method)
	}
	return res, nil
}

// Ping checks that the hub is alive.
func (c *HubConnection) Ping(ctx context.Context) error {
	c.mu.RLock()
	hub := c.hub
	c.mu.RUnlock()
	if hub == nil {
		return ErrNotConnected
	}
	_, err := hub.Call(ctx, "samp.hub.ping")
	return err
}

// Notify sends a notification to one client.
func (c *HubConnection) Notify(ctx context.Context, recipientID string, msg Message) error {
	_, err := c.hubCall(ctx, "samp.hub.notify", recipientID, msg.wire())
	return err
}

// NotifyAll sends a notification to every subscribed client and returns the
// ids it was sent to.
func (c *HubConnection) NotifyAll(ctx context.Context, msg Message) ([]string, error) {
	res, err := c.hubCall(ctx, "samp.hub.notifyAll", msg.wire())
	if err != nil {
		return nil, err
	}
	return stringList(res), nil
}

// Call sends a call to one client and returns the hub's message id. The
// response is delivered to the ResponseHandler bound for msgTag.
func (c *HubConnection) Call(ctx context.Context, recipientID, msgTag string, msg Message) (string, error) {
	res, err := c.hubCall(ctx, "samp.hub.call", recipientID, msgTag, msg.wire())
	if err != nil {
		return "", err
	}
	id, _ := res.(string)
	return id, nil
}

// CallAll sends a call to every subscribed client and returns recipient id ->
// message id.
func (c *HubConnection) CallAll(ctx context.Context, msgTag string, msg Message) (map[string]string, error) {
	res, err := c.hubCall(ctx, "samp.hub.callAll", msgTag, msg.wire())
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	m, _ := res.(map[string]any)
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// CallAndWait sends a call and blocks until the response arrives, the timeout
// elapses (0 = no limit) or ctx is done.
func (c *HubConnection) CallAndWait(ctx context.Context, recipientID string, msg Message, timeout time.Duration) (Response, error) {
	if c.cfg.NoCallback {
		return c.hubCallAndWait(ctx, recipientID, msg, timeout)
	}

	tag := uuid.New().String()
	ch := make(chan Response, 1)

	c.pendingMu.Lock()
	c.pending[tag] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, tag)
		c.pendingMu.Unlock()
	}()

	if _, err := c.Call(ctx, recipientID, tag, msg); err != nil {
		return Response{}, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-expired:
		return Response{}, errors.Wrapf(ErrTimeout, "%s from %s after %s", msg.MType, recipientID, timeout)
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// hubCallAndWait lets the hub do the waiting, for clients without a callback.
func (c *HubConnection) hubCallAndWait(ctx context.Context, recipientID string, msg Message, timeout time.Duration) (Response, error) {
	seconds := 0
	if timeout > 0 {
		seconds = int((timeout + time.Second - 1) / time.Second)
	}
	res, err := c.hubCall(ctx, "samp.hub.callAndWait", recipientID, msg.wire(), strconv.Itoa(seconds))
	if err != nil {
		return Response{}, err
	}
	return responseFromWire(res)
}

// Reply answers a call received by this client.
func (c *HubConnection) Reply(ctx context.Context, msgID string, resp Response) error {
	_, err := c.hubCall(ctx, "samp.hub.reply", msgID, resp.wire())
	return err
}

// EReply answers a call from its parts.
func (c *HubConnection) EReply(ctx context.Context, msgID string, status Status, result map[string]any, errText string) error {
	return c.Reply(ctx, msgID, Response{Status: status, Result: result, ErrorText: errText})
}

// GetRegisteredClients returns the ids of the other registered clients, the hub included.
func (c *HubConnection) GetRegisteredClients(ctx context.Context) ([]string, error) {
	res, err := c.hubCall(ctx, "samp.hub.getRegisteredClients")
	if err != nil {
		return nil, err
	}
	return stringList(res), nil
}

// GetSubscribedClients returns the ids of the other clients subscribed to mtype.
func (c *HubConnection) GetSubscribedClients(ctx context.Context, mtype string) ([]string, error) {
	res, err := c.hubCall(ctx, "samp.hub.getSubscribedClients", mtype)
	if err != nil {
		return nil, err
	}
	m, _ := res.(map[string]any)
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// GetMetadata returns the metadata declared by a client.
func (c *HubConnection) GetMetadata(ctx context.Context, clientID string) (Metadata, error) {
	res, err := c.hubCall(ctx, "samp.hub.getMetadata", clientID)
	if err != nil {
		return nil, err
	}
	return metadataFromWire(res), nil
}

// GetSubscriptions returns the subscriptions declared by a client.
func (c *HubConnection) GetSubscriptions(ctx context.Context, clientID string) (Subscriptions, error) {
	res, err := c.hubCall(ctx, "samp.hub.getSubscriptions", clientID)
	if err != nil {
		return nil, err
	}
	return subscriptionsFromWire(res), nil
}

func stringList(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (c *HubConnection) checkKey(params []any) error {
	key, err := stringArg(params, 0, "private-key")
	if err != nil {
		return err
	}
	c.mu.RLock()
	ok := key != "" && key == c.privateKey
	c.mu.RUnlock()
	if !ok {
		return errors.New("private key mismatch")
	}
	return nil
}

func (c *HubConnection) receiveNotification(ctx context.Context, params []any) (any, error) {
	if err := c.checkKey(params); err != nil {
		return nil, err
	}
	senderID, err := stringArg(params, 1, "sender-id")
	if err != nil {
		return nil, err
	}
	raw, err := mapArg(params, 2, "message")
	if err != nil {
		return nil, err
	}
	msg, err := messageFromWire(raw)
	if err != nil {
		return nil, invalidParams("%v", err)
	}

	for _, h := range c.notificationHandlers(msg.MType) {
		if err := h.ReceiveNotification(ctx, senderID, msg); err != nil {
			c.logger.Debug("notification handler failed", "mtype", msg.MType, "err", err.Error())
		}
	}
	return "", nil
}

func (c *HubConnection) receiveCall(_ context.Context, params []any) (any, error) {
	if err := c.checkKey(params); err != nil {
		return nil, err
	}
	senderID, err := stringArg(params, 1, "sender-id")
	if err != nil {
		return nil, err
	}
	msgID, err := stringArg(params, 2, "msg-id")
	if err != nil {
		return nil, err
	}
	raw, err := mapArg(params, 3, "message")
	if err != nil {
		return nil, err
	}
	msg, err := messageFromWire(raw)
	if err != nil {
		return nil, invalidParams("%v", err)
	}

	var handler CallHandler
	if hs := c.callHandlers(msg.MType); len(hs) > 0 {
		handler = hs[0]
	}

	// The reply goes through the hub, so answer the hub first.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()

		resp := ErrorResponse("no handler for " + msg.MType)
		if handler != nil {
			r, err := handler.ReceiveCall(ctx, senderID, msgID, msg)
			switch {
			case errors.Is(err, ErrReplyLater):
				return
			case err != nil:
				resp = ErrorResponse(err.Error())
			case r.Status == "":
				r.Status = StatusOK
				resp = r
			default:
				resp = r
			}
		}
		if err := c.Reply(ctx, msgID, resp); err != nil {
			c.logger.Warn("reply failed", "msg_id", msgID, "err", err.Error())
		}
	}()
	return "", nil
}

func (c *HubConnection) receiveResponse(ctx context.Context, params []any) (any, error) {
	if err := c.checkKey(params); err != nil {
		return nil, err
	}
	responderID, err := stringArg(params, 1, "responder-id")
	if err != nil {
		return nil, err
	}
	tag, err := stringArg(params, 2, "msg-tag")
	if err != nil {
		return nil, err
	}
	raw, err := mapArg(params, 3, "response")
	if err != nil {
		return nil, err
	}
	resp, err := responseFromWire(raw)
	if err != nil {
		return nil, invalidParams("%v", err)
	}

	c.pendingMu.Lock()
	ch, waiting := c.pending[tag]
	if waiting {
		delete(c.pending, tag)
	}
	c.pendingMu.Unlock()
	if waiting {
		select {
		case ch <- resp:
		default:
		}
		return "", nil
	}

	c.handlersMu.RLock()
	h := c.responses[tag]
	if h == nil {
		h = c.responses[AnyTag]
	}
	c.handlersMu.RUnlock()
	if h != nil {
		h.ReceiveResponse(ctx, responderID, tag, resp)
	} else {
		c.logger.Debug("unhandled response", "tag", tag, "from", responderID)
	}
	return "", nil
}

// matchingPatterns returns the bound patterns matching mtype: the exact one
// first, then wildcards in sorted order.
func matchingPatterns(bound []string, mtype string) []string {
	var exact, wild []string
	for _, p := range bound {
		switch {
		case p == mtype:
			exact = append(exact, p)
		case MatchMType(p, mtype):
			wild = append(wild, p)
		}
	}
	sort.Strings(wild)
	return append(exact, wild...)
}

func (c *HubConnection) notificationHandlers(mtype string) []NotificationHandler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	bound := make([]string, 0, len(c.notifications))
	for p := range c.notifications {
		bound = append(bound, p)
	}
	var out []NotificationHandler
	for _, p := range matchingPatterns(bound, mtype) {
		out = append(out, c.notifications[p]...)
	}
	return out
}

func (c *HubConnection) callHandlers(mtype string) []CallHandler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()
	bound := make([]string, 0, len(c.calls))
	for p := range c.calls {
		bound = append(bound, p)
	}
	var out []CallHandler
	for _, p := range matchingPatterns(bound, mtype) {
		out = append(out, c.calls[p]...)
	}
	return out
}
