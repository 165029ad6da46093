package samp

import "github.com/pkg/errors"

var (
	// ErrNoHub means no running hub could be found.
	ErrNoHub = errors.New("no SAMP hub running")
	// ErrNotConnected is returned by HubConnection methods before Connect.
	ErrNotConnected = errors.New("not connected to a SAMP hub")
	// ErrTableNotFound means the named table is unknown or its file is missing.
	ErrTableNotFound = errors.New("table not found")
	// ErrNoRecipients means no other application is registered with the hub.
	ErrNoRecipients = errors.New("no other SAMP clients registered")
	// ErrAppNotFound means no registered application has the requested samp.name.
	ErrAppNotFound = errors.New("application not registered")
	// ErrTimeout is returned by CallAndWait when no response arrives in time.
	ErrTimeout = errors.New("timed out waiting for response")
	// ErrReplyLater lets a CallHandler skip the automatic reply. The handler
	// must answer later with Reply or EReply using the msg-id it was given.
	ErrReplyLater = errors.New("reply deferred")
	// ErrHubStopped is returned by Hub methods after Stop.
	ErrHubStopped = errors.New("hub stopped")
)
