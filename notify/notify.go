// Package notify subscribes to change notifications of configuration
// elements. One socket carries any number of subscriptions, each identified
// by the subscription id the server assigns.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/ridge/smcmon/protocol"
	"github.com/ridge/smcmon/query"
	"github.com/ridge/smcmon/session"
	"github.com/ridge/smcmon/tlog"
	"github.com/ridge/smcmon/wire"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// All subscribes to changes of every element type
const All = "*"

// Notification is a set of subscriptions to element entry points such as
// host, network or layer2_policy
type Notification struct {
	context string
	extra   []string
	opts    protocol.Options

	mu            sync.Mutex
	subscriptions map[string]string
	lastID        string
}

// New creates a notification for the entry points. No entry points, an empty
// entry point or All subscribe to every element type.
func New(entryPoints ...string) *Notification {
	return &Notification{
		context:       strings.Join(entryPoints, ","),
		opts:          protocol.DefaultOptions,
		subscriptions: map[string]string{},
	}
}

// WithOptions sets the socket options
func (n *Notification) WithOptions(opts protocol.Options) *Notification {
	n.opts = opts
	return n
}

// Subscribe adds an entry point with its own subscription id. Subscriptions
// are registered when the socket is opened.
func (n *Notification) Subscribe(entryPoint string) {
	n.extra = append(n.extra, entryPoint)
}

// Request returns the first message sent on the socket
func (n *Notification) Request() wire.Context {
	return wire.Context{Context: n.context}
}

// Run opens the socket, registers the extra subscriptions and passes every
// frame to fn until the server closes the socket, fn returns an error or ctx
// is canceled. query.ErrStop ends the run without an error.
func (n *Notification) Run(ctx context.Context, sess *session.Session, fn func(msg wire.Message) error) error {
	ctx = tlog.With(ctx, zap.String("context", n.context))
	subscribe := func(p *protocol.Protocol) error {
		for _, ep := range n.extra {
			if err := p.Send(ctx, wire.Context{Context: ep}); err != nil {
				return fmt.Errorf("failed to subscribe to %s: %w", ep, err)
			}
		}
		return nil
	}
	return query.StreamInit(ctx, sess, query.NotificationLocation, n.Request(), n.opts, subscribe, func(_ *protocol.Protocol, msg wire.Message) error {
		return fn(msg)
	})
}

// Notify runs the subscriptions and passes every published change to fn
func (n *Notification) Notify(ctx context.Context, sess *session.Session, fn func(Event) error) error {
	return n.Run(ctx, sess, func(msg wire.Message) error {
		if msg.HasSuccess() {
			n.subscribed(msg)
		}
		if len(msg.Events) == 0 {
			return nil
		}
		id := msg.Subscription()
		if id == "" {
			id = n.last()
		}
		for _, ev := range msg.Events {
			if err := fn(Event{SubscriptionID: id, Action: ev.Type, Element: ev.Element}); err != nil {
				return err
			}
		}
		return nil
	})
}

func (n *Notification) subscribed(msg wire.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := msg.Subscription()
	n.subscriptions[msg.ContextName()] = id
	n.lastID = id
}

func (n *Notification) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastID
}

// Subscriptions returns the subscription ids by context, as acknowledged by
// the server
func (n *Notification) Subscriptions() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return maps.Clone(n.subscriptions)
}

// Event actions
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionTrashed    = "trashed"
	ActionUntrashed  = "untrashed"
	ActionValidating = "validating"
	ActionValidated  = "validated"
)

// Event is a change of a configuration element
type Event struct {
	SubscriptionID string
	Action         string
	Element        string
}

// ElementHref returns the href of the changed element as reachable through
// the session: the server publishes hrefs under its own host name, which
// may differ from the one the session connects to.
func (e Event) ElementHref(sess *session.Session) string {
	u, err := url.Parse(e.Element)
	if err != nil || u.Host == "" {
		return e.Element
	}
	u.Host = sess.Host()
	return u.String()
}

func (e Event) String() string {
	return fmt.Sprintf("Event(subscription_id=%s,action=%s,element=%s)", e.SubscriptionID, e.Action, e.Element)
}
