package samp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NotrixInc/nx-samp/xmlrpc"
)

// HubID is the public id under which the hub itself is registered.
const HubID = "hub"

// HubConfig holds configuration for a Hub.
type HubConfig struct {
	// Addr is the listen address of the XML-RPC endpoint (default 127.0.0.1:0).
	// A bare host gets port 0.
	Addr string
	// LockfilePath overrides the lockfile location (default SAMP_HUB or $HOME/.samp).
	LockfilePath string
	// Secret overrides the registration secret (default: random).
	Secret string
	// Label is written to the lockfile as hub.label.
	Label string

	Logger     Logger
	Clock      Clock
	HTTPClient *http.Client // used for callbacks into clients

	// DeliveryTimeout bounds each callback into a client (default 10s).
	DeliveryTimeout time.Duration
	// ServeMetrics exposes Prometheus metrics at /metrics on the hub listener.
	ServeMetrics bool
}

// ClientInfo is a snapshot of a registered client.
type ClientInfo struct {
	ID            string
	Metadata      Metadata
	Subscriptions Subscriptions
	Callable      bool
	RegisteredAt  time.Time
}

type hubClient struct {
	id           string
	key          string
	metadata     Metadata
	subs         Subscriptions
	callback     *xmlrpc.Client
	registeredAt time.Time
}

func (c *hubClient) info() ClientInfo {
	return ClientInfo{
		ID:            c.id,
		Metadata:      c.metadata.Clone(),
		Subscriptions: c.subs,
		Callable:      c.callback != nil,
		RegisteredAt:  c.registeredAt,
	}
}

// hubCall tracks a call until its reply arrives.
type hubCall struct {
	msgID     string
	sender    string
	recipient string
	tag       string
	// wait is set for callAndWait; the reply is handed over instead of delivered.
	wait chan Response
}

// Hub is a SAMP Standard Profile hub.
type Hub struct {
	cfg     HubConfig
	logger  Logger
	clock   Clock
	metrics *hubMetrics
	rpc     *xmlrpc.Server

	mu      sync.RWMutex
	byKey   map[string]*hubClient
	byID    map[string]*hubClient
	calls   map[string]*hubCall
	self    *hubClient
	nextID  int
	nextMsg int64

	secret   string
	url      string
	lockPath string
	listener net.Listener
	server   *http.Server
	started  bool
	stopped  bool
	done     chan struct{}

	// dispatchMu guards draining; once set no new deliveries join wg.
	dispatchMu sync.Mutex
	draining   bool
	wg         sync.WaitGroup
}

// NewHub creates a hub. Call Start to begin serving.
func NewHub(cfg HubConfig) *Hub {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = xmlrpc.NewRetryingHTTPClient(1)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		secret = uuid.New().String()
	}

	h := &Hub{
		cfg:     cfg,
		logger:  orNop(cfg.Logger),
		clock:   clock,
		metrics: newHubMetrics(),
		rpc:     xmlrpc.NewServer(),
		byKey:   make(map[string]*hubClient),
		byID:    make(map[string]*hubClient),
		calls:   make(map[string]*hubCall),
		secret:  secret,
		done:    make(chan struct{}),
	}

	h.self = &hubClient{
		id:  HubID,
		key: uuid.New().String(),
		metadata: Metadata{
			MetaName:            "Hub",
			MetaDescriptionText: "nx-samp hub",
		},
		subs:         Subscriptions{MTypePing: {}},
		registeredAt: clock.Now(),
	}
	h.byKey[h.self.key] = h.self
	h.byID[h.self.id] = h.self

	h.registerMethods()
	return h
}

// Start listens on the configured address and writes the lockfile.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrHubStopped
	}
	if h.started {
		return errors.New("hub already started")
	}

	addr := listenAddr(h.cfg.Addr)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}

	lockPath := strings.TrimSpace(h.cfg.LockfilePath)
	if lockPath == "" {
		lockPath, err = LockfilePath(os.Getenv)
		if err != nil {
			ln.Close()
			return err
		}
	}

	url := fmt.Sprintf("http://%s/xmlrpc", ln.Addr().String())
	extra := map[string]string{
		"hub.start.date": h.clock.Now().UTC().Format(time.RFC3339),
	}
	if h.cfg.Label != "" {
		extra["hub.label"] = h.cfg.Label
	}
	if err := WriteLockfile(lockPath, LockInfo{
		Secret:    h.secret,
		XMLRPCURL: url,
		Extra:     extra,
	}); err != nil {
		ln.Close()
		return err
	}

	router := mux.NewRouter()
	router.Handle("/xmlrpc", h.rpc).Methods(http.MethodPost)
	if h.cfg.ServeMetrics {
		router.Handle("/metrics", promhttp.HandlerFor(h.metrics.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	h.listener = ln
	h.url = url
	h.lockPath = lockPath
	h.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	h.started = true

	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.logger.Error("hub server stopped", "err", err.Error())
		}
	}()

	h.logger.Info("hub started", "url", url, "lockfile", lockPath)
	return nil
}

func listenAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "127.0.0.1:0"
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, "0")
	}
	return addr
}

// Stop notifies subscribed clients of the shutdown, stops serving and removes
// the lockfile. It is safe to call more than once.
func (h *Hub) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil
	}
	h.stopped = true
	started := h.started
	h.mu.Unlock()

	if !started {
		close(h.done)
		return nil
	}

	h.broadcastEvent(MTypeHubEventShutdown, Params{})

	h.dispatchMu.Lock()
	h.draining = true
	h.dispatchMu.Unlock()

	waited := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		h.logger.Warn("hub stop: pending deliveries abandoned")
	}

	close(h.done)

	var firstErr error
	if err := h.server.Shutdown(ctx); err != nil {
		firstErr = errors.Wrap(err, "shutdown hub server")
	}
	if err := removeOwnLockfile(h.lockPath, h.secret); err != nil && firstErr == nil {
		firstErr = err
	}
	h.logger.Info("hub stopped", "url", h.url)
	return firstErr
}

// removeOwnLockfile deletes the lockfile only when it still belongs to this hub.
func removeOwnLockfile(path, secret string) error {
	info, err := ReadLockfile(path)
	if err != nil {
		if errors.Is(err, ErrNoHub) {
			return nil
		}
		return err
	}
	if info.Secret != secret {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove lockfile")
	}
	return nil
}

// URL returns the XML-RPC endpoint, empty before Start.
func (h *Hub) URL() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.url
}

// Addr returns the listen address, nil before Start.
func (h *Hub) Addr() net.Addr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Secret returns the registration secret.
func (h *Hub) Secret() string { return h.secret }

// LockfilePath returns where the lockfile was written, empty before Start.
func (h *Hub) LockfilePath() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lockPath
}

// LockInfo returns what the hub advertises in its lockfile.
func (h *Hub) LockInfo() LockInfo {
	return LockInfo{Secret: h.secret, XMLRPCURL: h.URL(), ProfileVersion: ProfileVersion}
}

// Registry returns the Prometheus registry holding the hub's metrics.
func (h *Hub) Registry() *prometheus.Registry { return h.metrics.registry }

// Clients returns a snapshot of registered clients, the hub included, ordered by id.
func (h *Hub) Clients() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]ClientInfo, 0, len(h.byID))
	for _, c := range h.byID {
		out = append(out, c.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) registerMethods() {
	h.rpc.Register("samp.hub.ping", h.ping)
	h.rpc.Register("samp.hub.register", h.register)
	h.rpc.Register("samp.hub.unregister", h.unregister)
	h.rpc.Register("samp.hub.declareMetadata", h.declareMetadata)
	h.rpc.Register("samp.hub.getMetadata", h.getMetadata)
	h.rpc.Register("samp.hub.declareSubscriptions", h.declareSubscriptions)
	h.rpc.Register("samp.hub.getSubscriptions", h.getSubscriptions)
	h.rpc.Register("samp.hub.getRegisteredClients", h.getRegisteredClients)
	h.rpc.Register("samp.hub.getSubscribedClients", h.getSubscribedClients)
	h.rpc.Register("samp.hub.setXmlrpcCallback", h.setXmlrpcCallback)
	h.rpc.Register("samp.hub.notify", h.notify)
	h.rpc.Register("samp.hub.notifyAll", h.notifyAll)
	h.rpc.Register("samp.hub.call", h.call)
	h.rpc.Register("samp.hub.callAll", h.callAll)
	h.rpc.Register("samp.hub.callAndWait", h.callAndWait)
	h.rpc.Register("samp.hub.reply", h.reply)
}

func invalidParams(format string, args ...any) error {
	return &xmlrpc.Fault{Code: xmlrpc.FaultInvalidParams, String: fmt.Sprintf(format, args...)}
}

func stringArg(params []any, i int, name string) (string, error) {
	if i >= len(params) {
		return "", invalidParams("missing argument %s", name)
	}
	s, ok := params[i].(string)
	if !ok {
		return "", invalidParams("argument %s is %T, not a string", name, params[i])
	}
	return s, nil
}

func mapArg(params []any, i int, name string) (map[string]any, error) {
	if i >= len(params) {
		return nil, invalidParams("missing argument %s", name)
	}
	m, ok := params[i].(map[string]any)
	if !ok {
		return nil, invalidParams("argument %s is %T, not a map", name, params[i])
	}
	return m, nil
}

// caller resolves the private key passed as the first argument.
func (h *Hub) caller(params []any) (*hubClient, error) {
	key, err := stringArg(params, 0, "private-key")
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	c := h.byKey[key]
	h.mu.RUnlock()
	if c == nil {
		return nil, fmt.Errorf("unknown private key")
	}
	return c, nil
}

func (h *Hub) ping(_ context.Context, _ []any) (any, error) {
	return "", nil
}

func (h *Hub) register(_ context.Context, params []any) (any, error) {
	secret, err := stringArg(params, 0, "secret")
	if err != nil {
		return nil, err
	}
	if secret != h.secret {
		return nil, fmt.Errorf("invalid secret")
	}

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return nil, ErrHubStopped
	}
	h.nextID++
	c := &hubClient{
		id:           "c" + strconv.Itoa(h.nextID),
		key:          uuid.New().String(),
		metadata:     Metadata{},
		subs:         Subscriptions{},
		registeredAt: h.clock.Now(),
	}
	h.byKey[c.key] = c
	h.byID[c.id] = c
	n := len(h.byID)
	h.mu.Unlock()

	h.metrics.clients.Set(float64(n))
	h.logger.Info("client registered", "id", c.id)
	h.broadcastEvent(MTypeHubEventRegister, Params{"id": c.id})

	return map[string]any{
		"samp.private-key": c.key,
		"samp.hub-id":      HubID,
		"samp.self-id":     c.id,
	}, nil
}

func (h *Hub) unregister(_ context.Context, params []any) (any, error) {
	c, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	if c == h.self {
		return nil, fmt.Errorf("the hub cannot unregister itself")
	}

	h.mu.Lock()
	delete(h.byKey, c.key)
	delete(h.byID, c.id)
	var orphaned []*hubCall
	for id, call := range h.calls {
		if call.recipient == c.id {
			orphaned = append(orphaned, call)
		}
		if call.sender == c.id && call.wait == nil {
			delete(h.calls, id)
		}
	}
	n := len(h.byID)
	h.mu.Unlock()

	h.metrics.clients.Set(float64(n))
	h.logger.Info("client unregistered", "id", c.id)

	// Calls the departed client never answered get an error reply.
	for _, call := range orphaned {
		h.completeCall(call.msgID, c.id, ErrorResponse("recipient unregistered"))
	}
	h.broadcastEvent(MTypeHubEventUnregister, Params{"id": c.id})
	return "", nil
}

func (h *Hub) declareMetadata(_ context.Context, params []any) (any, error) {
	c, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	raw, err := mapArg(params, 1, "metadata")
	if err != nil {
		return nil, err
	}
	md := metadataFromWire(raw)

	h.mu.Lock()
	c.metadata = md
	h.mu.Unlock()

	h.broadcastEvent(MTypeHubEventMetadata, Params{"id": c.id, "metadata": md.wire()})
	return "", nil
}

func (h *Hub) getMetadata(_ context.Context, params []any) (any, error) {
	if _, err := h.caller(params); err != nil {
		return nil, err
	}
	id, err := stringArg(params, 1, "client-id")
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.byID[id]
	if c == nil {
		return nil, fmt.Errorf("unknown client %s", id)
	}
	return c.metadata.wire(), nil
}

func (h *Hub) declareSubscriptions(_ context.Context, params []any) (any, error) {
	c, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	raw, err := mapArg(params, 1, "subscriptions")
	if err != nil {
		return nil, err
	}
	subs := subscriptionsFromWire(raw)

	h.mu.Lock()
	if c.callback == nil && len(subs) > 0 {
		h.mu.Unlock()
		return nil, fmt.Errorf("client %s is not callable", c.id)
	}
	c.subs = subs
	h.mu.Unlock()

	h.broadcastEvent(MTypeHubEventSubscriptions, Params{"id": c.id, "subscriptions": subs.wire()})
	return "", nil
}

func (h *Hub) getSubscriptions(_ context.Context, params []any) (any, error) {
	if _, err := h.caller(params); err != nil {
		return nil, err
	}
	id, err := stringArg(params, 1, "client-id")
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.byID[id]
	if c == nil {
		return nil, fmt.Errorf("unknown client %s", id)
	}
	return c.subs.wire(), nil
}

func (h *Hub) getRegisteredClients(_ context.Context, params []any) (any, error) {
	c, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	h.mu.RLock()
	ids := make([]string, 0, len(h.byID))
	for id := range h.byID {
		if id != c.id {
			ids = append(ids, id)
		}
	}
	h.mu.RUnlock()
	sort.Strings(ids)

	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out, nil
}

func (h *Hub) getSubscribedClients(_ context.Context, params []any) (any, error) {
	c, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	mtype, err := stringArg(params, 1, "mtype")
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, r := range h.recipients(c, mtype) {
		out[r.id] = map[string]any{}
	}
	return out, nil
}

func (h *Hub) setXmlrpcCallback(_ context.Context, params []any) (any, error) {
	c, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	url, err := stringArg(params, 1, "url")
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	c.callback = xmlrpc.NewClient(url, xmlrpc.WithHTTPClient(h.cfg.HTTPClient))
	h.mu.Unlock()
	return "", nil
}

// recipients returns the clients other than sender subscribed to mtype.
func (h *Hub) recipients(sender *hubClient, mtype string) []*hubClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*hubClient
	for _, c := range h.byID {
		if c == sender {
			continue
		}
		if c.subs.Matches(mtype) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// recipient resolves a single addressee and checks its subscription.
func (h *Hub) recipient(id, mtype string) (*hubClient, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.byID[id]
	if c == nil {
		return nil, fmt.Errorf("unknown recipient %s", id)
	}
	if !c.subs.Matches(mtype) {
		return nil, fmt.Errorf("client %s is not subscribed to %s", id, mtype)
	}
	return c, nil
}

func (h *Hub) messageArgs(params []any, i int) (Message, map[string]any, error) {
	raw, err := mapArg(params, i, "message")
	if err != nil {
		return Message{}, nil, err
	}
	msg, err := messageFromWire(raw)
	if err != nil {
		return Message{}, nil, invalidParams("%v", err)
	}
	return msg, raw, nil
}

func (h *Hub) notify(_ context.Context, params []any) (any, error) {
	sender, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	to, err := stringArg(params, 1, "recipient-id")
	if err != nil {
		return nil, err
	}
	msg, raw, err := h.messageArgs(params, 2)
	if err != nil {
		return nil, err
	}
	r, err := h.recipient(to, msg.MType)
	if err != nil {
		return nil, err
	}
	h.metrics.messages.WithLabelValues("notify", msg.MType).Inc()
	h.deliverNotification(sender.id, r, msg.MType, raw)
	return "", nil
}

func (h *Hub) notifyAll(_ context.Context, params []any) (any, error) {
	sender, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	msg, raw, err := h.messageArgs(params, 1)
	if err != nil {
		return nil, err
	}
	h.metrics.messages.WithLabelValues("notifyAll", msg.MType).Inc()

	out := []any{}
	for _, r := range h.recipients(sender, msg.MType) {
		h.deliverNotification(sender.id, r, msg.MType, raw)
		out = append(out, r.id)
	}
	return out, nil
}

func (h *Hub) call(_ context.Context, params []any) (any, error) {
	sender, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	to, err := stringArg(params, 1, "recipient-id")
	if err != nil {
		return nil, err
	}
	tag, err := stringArg(params, 2, "msg-tag")
	if err != nil {
		return nil, err
	}
	msg, raw, err := h.messageArgs(params, 3)
	if err != nil {
		return nil, err
	}
	r, err := h.recipient(to, msg.MType)
	if err != nil {
		return nil, err
	}
	h.metrics.messages.WithLabelValues("call", msg.MType).Inc()
	call := h.newCall(sender.id, r.id, tag, nil)
	h.deliverCall(sender.id, r, call.msgID, msg.MType, raw)
	return call.msgID, nil
}

func (h *Hub) callAll(_ context.Context, params []any) (any, error) {
	sender, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	tag, err := stringArg(params, 1, "msg-tag")
	if err != nil {
		return nil, err
	}
	msg, raw, err := h.messageArgs(params, 2)
	if err != nil {
		return nil, err
	}
	h.metrics.messages.WithLabelValues("callAll", msg.MType).Inc()

	out := map[string]any{}
	for _, r := range h.recipients(sender, msg.MType) {
		call := h.newCall(sender.id, r.id, tag, nil)
		h.deliverCall(sender.id, r, call.msgID, msg.MType, raw)
		out[r.id] = call.msgID
	}
	return out, nil
}

func (h *Hub) callAndWait(ctx context.Context, params []any) (any, error) {
	sender, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	to, err := stringArg(params, 1, "recipient-id")
	if err != nil {
		return nil, err
	}
	msg, raw, err := h.messageArgs(params, 2)
	if err != nil {
		return nil, err
	}
	timeoutArg, err := stringArg(params, 3, "timeout")
	if err != nil {
		return nil, err
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(timeoutArg))
	if err != nil {
		return nil, invalidParams("bad timeout %q", timeoutArg)
	}
	r, err := h.recipient(to, msg.MType)
	if err != nil {
		return nil, err
	}
	h.metrics.messages.WithLabelValues("callAndWait", msg.MType).Inc()

	wait := make(chan Response, 1)
	call := h.newCall(sender.id, r.id, "", wait)
	h.deliverCall(sender.id, r, call.msgID, msg.MType, raw)

	var timeout <-chan time.Time
	if seconds > 0 {
		t := time.NewTimer(time.Duration(seconds) * time.Second)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case resp := <-wait:
		return resp.wire(), nil
	case <-timeout:
		h.dropCall(call.msgID)
		return nil, fmt.Errorf("timeout after %ds waiting for %s", seconds, r.id)
	case <-ctx.Done():
		h.dropCall(call.msgID)
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrHubStopped
	}
}

func (h *Hub) reply(_ context.Context, params []any) (any, error) {
	responder, err := h.caller(params)
	if err != nil {
		return nil, err
	}
	msgID, err := stringArg(params, 1, "msg-id")
	if err != nil {
		return nil, err
	}
	raw, err := mapArg(params, 2, "response")
	if err != nil {
		return nil, err
	}
	resp, err := responseFromWire(raw)
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	if err := h.completeCall(msgID, responder.id, resp); err != nil {
		return nil, err
	}
	return "", nil
}

func (h *Hub) newCall(sender, recipient, tag string, wait chan Response) *hubCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextMsg++
	call := &hubCall{
		msgID:     fmt.Sprintf("%s_%d", sender, h.nextMsg),
		sender:    sender,
		recipient: recipient,
		tag:       tag,
		wait:      wait,
	}
	h.calls[call.msgID] = call
	return call
}

func (h *Hub) dropCall(msgID string) {
	h.mu.Lock()
	delete(h.calls, msgID)
	h.mu.Unlock()
}

// completeCall routes a reply back to the original caller.
func (h *Hub) completeCall(msgID, responderID string, resp Response) error {
	h.mu.Lock()
	call := h.calls[msgID]
	if call == nil {
		h.mu.Unlock()
		return fmt.Errorf("unknown message id %s", msgID)
	}
	if call.recipient != responderID {
		h.mu.Unlock()
		return fmt.Errorf("message %s was not sent to %s", msgID, responderID)
	}
	delete(h.calls, msgID)
	sender := h.byID[call.sender]
	h.mu.Unlock()

	if call.wait != nil {
		select {
		case call.wait <- resp:
		default:
		}
		return nil
	}
	if sender == nil {
		h.logger.Debug("reply for departed sender dropped", "msg_id", msgID)
		return nil
	}
	h.deliverResponse(responderID, sender, call.tag, resp)
	return nil
}

// dispatch runs a callback into a client in the background. Deliveries
// requested after Stop has started draining are dropped.
func (h *Hub) dispatch(what, target string, fn func(ctx context.Context) error) {
	h.dispatchMu.Lock()
	if h.draining {
		h.dispatchMu.Unlock()
		h.logger.Debug("delivery dropped, hub stopping", "what", what, "to", target)
		return
	}
	h.wg.Add(1)
	h.dispatchMu.Unlock()
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.DeliveryTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			h.metrics.failures.Inc()
			h.logger.Warn("delivery failed", "what", what, "to", target, "err", err.Error())
		}
	}()
}

func (h *Hub) callbackOf(c *hubClient) *xmlrpc.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.callback
}

func (h *Hub) deliverNotification(senderID string, r *hubClient, mtype string, raw map[string]any) {
	if r == h.self {
		return
	}
	cb := h.callbackOf(r)
	if cb == nil {
		return
	}
	h.dispatch(mtype, r.id, func(ctx context.Context) error {
		_, err := cb.Call(ctx, "samp.client.receiveNotification", r.key, senderID, raw)
		return err
	})
}

func (h *Hub) deliverCall(senderID string, r *hubClient, msgID, mtype string, raw map[string]any) {
	if r == h.self {
		h.dispatch(mtype, r.id, func(context.Context) error {
			resp := OKResponse(map[string]any{})
			if mtype != MTypePing {
				resp = ErrorResponse("hub does not handle " + mtype)
			}
			return h.completeCall(msgID, HubID, resp)
		})
		return
	}

	cb := h.callbackOf(r)
	h.dispatch(mtype, r.id, func(ctx context.Context) error {
		if cb == nil {
			return h.completeCall(msgID, r.id, ErrorResponse("recipient is not callable"))
		}
		_, err := cb.Call(ctx, "samp.client.receiveCall", r.key, senderID, msgID, raw)
		if err != nil {
			_ = h.completeCall(msgID, r.id, ErrorResponse("delivery failed: "+err.Error()))
		}
		return err
	})
}

func (h *Hub) deliverResponse(responderID string, sender *hubClient, tag string, resp Response) {
	if sender == h.self {
		return
	}
	cb := h.callbackOf(sender)
	if cb == nil {
		return
	}
	h.dispatch("response", sender.id, func(ctx context.Context) error {
		_, err := cb.Call(ctx, "samp.client.receiveResponse", sender.key, responderID, tag, resp.wire())
		return err
	})
}

// broadcastEvent sends a hub event from the hub to every subscribed client.
func (h *Hub) broadcastEvent(mtype string, params Params) {
	raw := NewMessage(mtype, params).wire()
	for _, r := range h.recipients(h.self, mtype) {
		h.deliverNotification(HubID, r, mtype, raw)
	}
}
