package samp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/NotrixInc/nx-samp/fitstable"
	"github.com/NotrixInc/nx-samp/xmlrpc"
)

// DefaultTableName is used by Send when no name is given.
const DefaultTableName = "var.fits"

// TableRef records a table exchanged with other applications.
type TableRef struct {
	Name    string
	TableID string
	URL     string
	// SenderID is empty for tables sent by this proxy.
	SenderID string
}

// ReceivedMessage is the last message handled by a Proxy.
type ReceivedMessage struct {
	Label      string
	SenderID   string
	MsgID      string
	MType      string
	Params     Params
	Extra      map[string]any
	ReceivedAt time.Time
}

// ProxyConfig holds configuration for a Proxy.
type ProxyConfig struct {
	// StartHub runs an embedded hub owned by the proxy.
	StartHub bool
	Hub      HubConfig

	// Metadata is merged over DefaultMetadata.
	Metadata Metadata
	// Connection carries the HubConnection settings; its Metadata, Logger and
	// Getenv are filled from this config.
	Connection ConnectionConfig

	// ScratchDir defaults to $HOME/tempo/samptables.
	ScratchDir string
	// KeepScratch leaves existing files in place instead of emptying the
	// scratch directory.
	KeepScratch bool

	// HTTPClient downloads tables offered over http(s) (default: retrying client).
	HTTPClient *http.Client

	Logger Logger
	Clock  Clock
	Getenv func(string) string
}

// Proxy sends and receives FITS tables through a SAMP hub.
type Proxy struct {
	cfg        ProxyConfig
	logger     Logger
	clock      Clock
	scratch    *ScratchDir
	httpClient *http.Client
	metadata   Metadata

	connMu sync.Mutex
	hub    *Hub
	conn   *HubConnection

	mu         sync.RWMutex
	tables     map[string]TableRef
	rowList    []int
	selections map[string][]int
	currentRow *int
	last       *ReceivedMessage
}

// SendOption customises Send, SendRow and SendRows.
type SendOption func(*sendOptions)

type sendOptions struct {
	to         string
	columns    []string
	disconnect bool
}

// To addresses a single application by its samp.name instead of broadcasting.
func To(appName string) SendOption {
	return func(o *sendOptions) { o.to = appName }
}

// Columns renames the columns of the table before it is written.
func Columns(names ...string) SendOption {
	return func(o *sendOptions) { o.columns = names }
}

// DisconnectAfter disconnects from the hub once the message is sent.
func DisconnectAfter() SendOption {
	return func(o *sendOptions) { o.disconnect = true }
}

// NewProxy prepares the scratch directory, optionally starts a hub and connects.
func NewProxy(ctx context.Context, cfg ProxyConfig) (*Proxy, error) {
	if cfg.Getenv == nil {
		cfg.Getenv = os.Getenv
	}
	clock := cfg.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	root := cfg.ScratchDir
	if strings.TrimSpace(root) == "" {
		var err error
		if root, err = DefaultScratchPath(cfg.Getenv); err != nil {
			return nil, err
		}
	}
	scratch, err := NewScratchDir(root)
	if err != nil {
		return nil, err
	}
	if cfg.KeepScratch {
		err = os.MkdirAll(scratch.Root(), 0o755)
	} else {
		err = scratch.Reset()
	}
	if err != nil {
		return nil, errors.Wrap(err, "prepare scratch directory")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = xmlrpc.NewRetryingHTTPClient(3)
	}

	p := &Proxy{
		cfg:        cfg,
		logger:     orNop(cfg.Logger),
		clock:      clock,
		scratch:    scratch,
		httpClient: httpClient,
		metadata:   DefaultMetadata().Merge(cfg.Metadata),
		tables:     make(map[string]TableRef),
		selections: make(map[string][]int),
	}
	if err := p.On(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// On connects to the hub, starting the owned hub first when configured.
// Calling On while connected is a no-op.
func (p *Proxy) On(ctx context.Context) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	if p.conn != nil && p.conn.IsConnected() {
		return nil
	}

	connCfg := p.cfg.Connection
	connCfg.Metadata = p.metadata
	connCfg.Getenv = p.cfg.Getenv
	if connCfg.Logger == nil {
		connCfg.Logger = p.cfg.Logger
	}
	onLost := connCfg.OnHubLost
	connCfg.OnHubLost = func() {
		p.logger.Warn("lost connection to hub")
		if onLost != nil {
			onLost()
		}
	}

	var started *Hub
	if p.cfg.StartHub && p.hub == nil {
		hubCfg := p.cfg.Hub
		if hubCfg.Logger == nil {
			hubCfg.Logger = p.cfg.Logger
		}
		if hubCfg.Clock == nil {
			hubCfg.Clock = p.clock
		}
		h := NewHub(hubCfg)
		if err := h.Start(ctx); err != nil {
			return errors.Wrap(err, "start hub")
		}
		p.hub, started = h, h
	}
	if p.hub != nil {
		lock := p.hub.LockInfo()
		connCfg.Lock = &lock
	}

	conn := NewHubConnection(connCfg)
	p.bind(conn)
	if err := conn.Connect(ctx); err != nil {
		if started != nil {
			_ = started.Stop(ctx)
			p.hub = nil
		}
		return err
	}
	p.conn = conn
	return nil
}

// Off disconnects from the hub and stops the owned hub, if any.
func (p *Proxy) Off(ctx context.Context) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	var firstErr error
	if p.conn != nil {
		if err := p.conn.Disconnect(ctx); err != nil {
			firstErr = err
		}
	}
	if p.hub != nil {
		if err := p.hub.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		p.hub = nil
	}
	return firstErr
}

// Close is Off.
func (p *Proxy) Close(ctx context.Context) error { return p.Off(ctx) }

// Connection returns the current hub connection.
func (p *Proxy) Connection() *HubConnection {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	return p.conn
}

// Hub returns the owned hub, or nil.
func (p *Proxy) Hub() *Hub {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	return p.hub
}

func (p *Proxy) ScratchDir() *ScratchDir { return p.scratch }

func (p *Proxy) Metadata() Metadata { return p.metadata.Clone() }

func (p *Proxy) connection() (*HubConnection, error) {
	c := p.Connection()
	if c == nil || !c.IsConnected() {
		return nil, ErrNotConnected
	}
	return c, nil
}

func (p *Proxy) bind(c *HubConnection) {
	rows := NotificationHandlerFunc(func(ctx context.Context, senderID string, msg Message) error {
		return p.receiveRows(senderID, "", msg)
	})
	c.BindReceiveNotification(MTypeTableHighlightRow, rows)
	c.BindReceiveNotification(MTypeTableSelectRows, rows)

	notes := NotificationHandlerFunc(p.receiveNotification)
	c.BindReceiveNotification(MTypeTableLoadFITS, notes)
	c.BindReceiveNotification("samp.app.*", notes)

	calls := CallHandlerFunc(p.receiveCall)
	c.BindReceiveCall("samp.app.*", calls)
	c.BindReceiveCall(MTypeTableLoadFITS, calls)
	c.BindReceiveCall(MTypeTableSelectRows, calls)
}

func (p *Proxy) record(label, senderID, msgID string, msg Message) {
	m := &ReceivedMessage{
		Label:      label,
		SenderID:   senderID,
		MsgID:      msgID,
		MType:      msg.MType,
		Params:     msg.Params,
		Extra:      msg.Extra,
		ReceivedAt: p.clock.Now(),
	}
	p.mu.Lock()
	p.last = m
	p.mu.Unlock()
}

func (p *Proxy) receiveNotification(_ context.Context, senderID string, msg Message) error {
	p.logger.Info("notification", "sender", senderID, "mtype", msg.MType)
	p.record("Notification", senderID, "", msg)
	if msg.MType == MTypeTableLoadFITS {
		return p.storeTable(senderID, msg)
	}
	return nil
}

func (p *Proxy) receiveCall(_ context.Context, senderID, msgID string, msg Message) (Response, error) {
	p.logger.Info("call", "sender", senderID, "msg_id", msgID, "mtype", msg.MType)
	p.record("Call", senderID, msgID, msg)

	switch msg.MType {
	case MTypeTableLoadFITS:
		if err := p.storeTable(senderID, msg); err != nil {
			return Response{}, err
		}
	case MTypeTableSelectRows:
		if err := p.receiveRows(senderID, msgID, msg); err != nil {
			return Response{}, err
		}
	}
	return OKResponse(map[string]any{"txt": "printed"}), nil
}

func (p *Proxy) storeTable(senderID string, msg Message) error {
	load, err := ParseTableLoad(msg.Params)
	if err != nil {
		return err
	}
	name := load.Name
	if name == "" {
		name = load.TableID
	}
	if name == "" {
		name = path.Base(load.URL)
	}
	p.mu.Lock()
	p.tables[name] = TableRef{Name: name, TableID: load.TableID, URL: load.URL, SenderID: senderID}
	p.mu.Unlock()
	p.logger.Info("table received", "name", name, "url", load.URL)
	return nil
}

func (p *Proxy) receiveRows(senderID, msgID string, msg Message) error {
	switch msg.MType {
	case MTypeTableHighlightRow:
		hl, err := ParseHighlightRow(msg.Params)
		if err != nil {
			return err
		}
		row := hl.Row
		p.mu.Lock()
		p.currentRow = &row
		p.mu.Unlock()
		p.logger.Info("row highlighted", "row", row, "url", hl.URL)
	case MTypeTableSelectRows:
		sel, err := ParseSelectRows(msg.Params)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.rowList = sel.Rows
		p.selections[sel.URL] = sel.Rows
		p.mu.Unlock()
		p.logger.Info("rows selected", "count", len(sel.Rows), "url", sel.URL)
	default:
		return errors.Errorf("unexpected mtype %s", msg.MType)
	}
	p.record("Selected Rows", senderID, msgID, msg)
	return nil
}

// Send writes t to the scratch directory as name (default var.fits) and offers
// it to the other applications with table.load.fits.
func (p *Proxy) Send(ctx context.Context, t *fitstable.Table, name string, opts ...SendOption) error {
	if t == nil {
		return errors.New("nil table")
	}
	o := sendOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(name) == "" {
		name = DefaultTableName
	}
	file, err := TableFileName(name)
	if err != nil {
		return err
	}

	if len(o.columns) > 0 {
		renamed := *t
		renamed.Columns = append([]fitstable.Column(nil), t.Columns...)
		if err := renamed.Rename(o.columns); err != nil {
			return err
		}
		t = &renamed
	}

	fullPath, err := p.scratch.Path(file)
	if err != nil {
		return err
	}
	if err := fitstable.WriteFile(fullPath, t); err != nil {
		return errors.Wrapf(err, "write %s", file)
	}
	u := FileURL(fullPath)

	p.mu.Lock()
	p.tables[file] = TableRef{Name: file, TableID: file, URL: u}
	p.mu.Unlock()

	msg := TableLoadParams{URL: u, TableID: file, Name: file}.Message()
	if err := p.deliver(ctx, msg, o.to); err != nil {
		return err
	}
	p.logger.Info("table broadcast", "table", file, "path", fullPath, "to", recipientLabel(o.to))

	if o.disconnect {
		c := p.Connection()
		if c != nil {
			return c.Disconnect(ctx)
		}
	}
	return nil
}

// Set sends t under name, optionally renaming its columns.
func (p *Proxy) Set(ctx context.Context, name string, t *fitstable.Table, columns ...string) error {
	var opts []SendOption
	if len(columns) > 0 {
		opts = append(opts, Columns(columns...))
	}
	return p.Send(ctx, t, name, opts...)
}

// SendRow highlights row idx of a table previously sent by this proxy with
// table.highlight.row.
func (p *Proxy) SendRow(ctx context.Context, table string, idx int, opts ...SendOption) error {
	o, file, u, err := p.rowTarget(table, opts)
	if err != nil {
		return err
	}
	if idx < 0 {
		return errors.Errorf("invalid row index %d", idx)
	}
	msg := HighlightRowParams{URL: u, TableID: file, Name: file, Row: idx}.Message()
	if err := p.deliver(ctx, msg, o.to); err != nil {
		return err
	}
	p.logger.Info("row sent", "table", file, "row", idx, "to", recipientLabel(o.to))
	return nil
}

// SendRows selects rows of a table previously sent by this proxy with
// table.select.rowList, replacing the receivers' selection.
func (p *Proxy) SendRows(ctx context.Context, table string, idx []int, opts ...SendOption) error {
	o, file, u, err := p.rowTarget(table, opts)
	if err != nil {
		return err
	}
	if len(idx) == 0 {
		return errors.New("no rows to send")
	}
	msg := SelectRowsParams{URL: u, TableID: file, Name: file, Rows: idx}.Message()
	if err := p.deliver(ctx, msg, o.to); err != nil {
		return err
	}
	p.logger.Info("rows sent", "table", file, "count", len(idx), "to", recipientLabel(o.to))
	return nil
}

// rowTarget resolves the scratch file and URL a row message refers to.
func (p *Proxy) rowTarget(table string, opts []SendOption) (sendOptions, string, string, error) {
	o := sendOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	file, err := TableFileName(table)
	if err != nil {
		return o, "", "", err
	}
	if !p.scratch.Exists(file) {
		return o, "", "", errors.Wrapf(ErrTableNotFound, "%s not in %s", file, p.scratch.Root())
	}
	u, err := p.scratch.URL(file)
	if err != nil {
		return o, "", "", err
	}
	return o, file, u, nil
}

func recipientLabel(to string) string {
	if isBroadcast(to) {
		return "all"
	}
	return to
}

func isBroadcast(to string) bool {
	to = strings.TrimSpace(to)
	return to == "" || strings.EqualFold(to, "all")
}

// deliver notifies the application named to, or everybody.
func (p *Proxy) deliver(ctx context.Context, msg Message, to string) error {
	c, err := p.connection()
	if err != nil {
		return err
	}
	others, err := p.Neighbours(ctx)
	if err != nil {
		return err
	}
	if len(others) == 0 {
		return ErrNoRecipients
	}
	if isBroadcast(to) {
		_, err := c.NotifyAll(ctx, msg)
		return err
	}
	id, err := p.AppID(ctx, to)
	if err != nil {
		return err
	}
	return c.Notify(ctx, id, msg)
}

// Get reads a table offered by another application, or one sent by this proxy.
func (p *Proxy) Get(ctx context.Context, name string) (*fitstable.Table, error) {
	ref, ok := p.Table(name)
	if !ok {
		return nil, errors.Wrap(ErrTableNotFound, name)
	}

	u, err := url.Parse(ref.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "table %s url", name)
	}
	switch u.Scheme {
	case "file", "":
		t, err := fitstable.ReadFile(u.Path)
		if os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(ErrTableNotFound, "%s: %s missing", name, u.Path)
		}
		return t, err
	case "http", "https":
		return p.download(ctx, ref.URL)
	}
	return nil, errors.Errorf("table %s: unsupported url scheme %q", name, u.Scheme)
}

func (p *Proxy) download(ctx context.Context, rawURL string) (*fitstable.Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "download %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("download %s: %s", rawURL, resp.Status)
	}
	return fitstable.Read(resp.Body)
}

// Table looks up a table record by name, with or without the .fits suffix.
func (p *Proxy) Table(name string) (TableRef, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if ref, ok := p.tables[name]; ok {
		return ref, true
	}
	if file, err := TableFileName(name); err == nil {
		ref, ok := p.tables[file]
		return ref, ok
	}
	return TableRef{}, false
}

// Tables returns the known tables by name.
func (p *Proxy) Tables() map[string]TableRef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]TableRef, len(p.tables))
	for k, v := range p.tables {
		out[k] = v
	}
	return out
}

// RowList returns the rows of the most recent table.select.rowList.
func (p *Proxy) RowList() []int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]int(nil), p.rowList...)
}

// Selections returns the most recent row selection per table url.
func (p *Proxy) Selections() map[string][]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string][]int, len(p.selections))
	for k, v := range p.selections {
		out[k] = append([]int(nil), v...)
	}
	return out
}

// CurrentRow returns the most recently highlighted row.
func (p *Proxy) CurrentRow() (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.currentRow == nil {
		return 0, false
	}
	return *p.currentRow, true
}

func (p *Proxy) LastMessage() (ReceivedMessage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return ReceivedMessage{}, false
	}
	return *p.last, true
}

// Neighbours returns the ids of the other registered applications, the hub excluded.
func (p *Proxy) Neighbours(ctx context.Context) ([]string, error) {
	c, err := p.connection()
	if err != nil {
		return nil, err
	}
	ids, err := c.GetRegisteredClients(ctx)
	if err != nil {
		return nil, err
	}
	hubID := c.HubID()
	out := ids[:0]
	for _, id := range ids {
		if id != hubID {
			out = append(out, id)
		}
	}
	return out, nil
}

// AppID returns the id of the registered application whose samp.name is name.
func (p *Proxy) AppID(ctx context.Context, name string) (string, error) {
	c, err := p.connection()
	if err != nil {
		return "", err
	}
	ids, err := c.GetRegisteredClients(ctx)
	if err != nil {
		return "", err
	}
	for _, id := range ids {
		md, err := c.GetMetadata(ctx, id)
		if err != nil {
			p.logger.Debug("metadata lookup failed", "client", id, "err", err.Error())
			continue
		}
		if md.Name() == name {
			return id, nil
		}
	}
	return "", errors.Wrap(ErrAppNotFound, name)
}

func (p *Proxy) IsAppRunning(ctx context.Context, name string) bool {
	_, err := p.AppID(ctx, name)
	return err == nil
}

// Info writes the proxy metadata, the neighbouring applications and the known
// tables to w.
func (p *Proxy) Info(ctx context.Context, w io.Writer) error {
	md := p.Metadata()
	for _, k := range md.Keys() {
		fmt.Fprintf(w, "%s : %s\n", k, md[k])
	}

	if c, err := p.connection(); err == nil {
		ids, err := p.Neighbours(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d detected client(s):\n", len(ids))
		if len(ids) > 0 {
			table := newTextTable(w, "ID", "Name")
			for _, id := range ids {
				name := ""
				if nmd, err := c.GetMetadata(ctx, id); err == nil {
					name = nmd.Name()
				}
				table.Append([]string{id, name})
			}
			table.Render()
		}
	} else {
		fmt.Fprintln(w, "not connected")
	}

	tables := p.Tables()
	names := make([]string, 0, len(tables))
	for k := range tables {
		names = append(names, k)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "Registered tables: %d\n", len(names))
	if len(names) > 0 {
		table := newTextTable(w, "Name", "Size", "URL")
		for _, name := range names {
			ref := tables[name]
			table.Append([]string{name, localSize(ref.URL), ref.URL})
		}
		table.Render()
	}
	return nil
}

func newTextTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	return table
}

func localSize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "file" {
		return "-"
	}
	st, err := os.Stat(u.Path)
	if err != nil {
		return "-"
	}
	return humanize.Bytes(uint64(st.Size()))
}
