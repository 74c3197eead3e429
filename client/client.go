// Package client implements the auth bridge embedded in each micro-frontend
// module. A Bridge owns the module's view of the user — unresolved,
// authenticated, or anonymous — and delegates the actual credential plumbing
// to a pluggable Strategy. Modules in the same shell share transitions over a
// bus.Bus so a logout in one module is reflected everywhere.
package client

import (
	"context"
	"net/http"
	"sync"

	"github.com/mfekit/bff/bus"
	"github.com/mfekit/bff/identity"
)

// Mode is the bridge's authentication state.
type Mode string

const (
	// ModeUnresolved means no resolution attempt has completed yet. UIs
	// should render a loading state, not a login prompt.
	ModeUnresolved Mode = "unresolved"
	// ModeAuthenticated means a live session or token is held.
	ModeAuthenticated Mode = "authenticated"
	// ModeAnonymous means resolution completed and found no user.
	ModeAnonymous Mode = "anonymous"
)

// Snapshot is a point-in-time copy of the bridge state, safe to hand to
// rendering code. Loading is true only while the initial Resolve is in
// flight; an explicit Login or Logout never flashes a loading state.
type Snapshot struct {
	Mode    Mode
	Loading bool
	Profile identity.Profile
}

// Strategy is the transport-specific half of a bridge: how credentials are
// established, introspected, and attached to outgoing requests.
type Strategy interface {
	// Resolve checks for an existing credential. ok is false when the user
	// is definitively anonymous; a non-nil error means the answer is
	// unknown (for example the broker was unreachable).
	Resolve(ctx context.Context) (profile identity.Profile, ok bool, err error)

	// Login exchanges a raw upstream credential for an authenticated state.
	Login(ctx context.Context, credential string) (identity.Profile, error)

	// Logout tears down the credential. Implementations clear local state
	// even when the remote side cannot be reached.
	Logout(ctx context.Context) error

	// Headers returns the headers to attach to outgoing requests to
	// protected module APIs.
	Headers() http.Header
}

// Bridge tracks authentication state for one module.
type Bridge struct {
	strategy Strategy
	events   *bus.Bus

	mu      sync.Mutex
	mode    Mode
	profile identity.Profile
	loading bool
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithBus wires the bridge to a shared event bus. The bridge publishes its
// own login/logout transitions and mirrors transitions published by other
// bridges on the same bus.
func WithBus(b *bus.Bus) BridgeOption {
	return func(br *Bridge) { br.events = b }
}

// NewBridge returns a bridge in ModeUnresolved.
func NewBridge(s Strategy, opts ...BridgeOption) *Bridge {
	br := &Bridge{strategy: s, mode: ModeUnresolved}
	for _, opt := range opts {
		opt(br)
	}
	if br.events != nil {
		br.events.Subscribe(br.applyBusEvent)
	}
	return br
}

// Snapshot returns the current state.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Mode: b.mode, Loading: b.loading, Profile: b.profile}
}

// Resolve asks the strategy whether a user is already signed in and settles
// the bridge into ModeAuthenticated or ModeAnonymous. On error the bridge
// settles as anonymous rather than hanging in ModeUnresolved, and the error
// is returned so the caller can schedule a retry.
func (b *Bridge) Resolve(ctx context.Context) error {
	b.setLoading(true)
	profile, ok, err := b.strategy.Resolve(ctx)

	b.mu.Lock()
	b.loading = false
	switch {
	case err != nil:
		b.mode = ModeAnonymous
		b.profile = identity.Profile{}
	case ok:
		b.mode = ModeAuthenticated
		b.profile = profile
	default:
		b.mode = ModeAnonymous
		b.profile = identity.Profile{}
	}
	b.mu.Unlock()
	return err
}

// Login authenticates with the given credential. On success the bridge moves
// to ModeAuthenticated and a login event is published.
func (b *Bridge) Login(ctx context.Context, credential string) (identity.Profile, error) {
	profile, err := b.strategy.Login(ctx, credential)

	b.mu.Lock()
	if err != nil {
		b.mu.Unlock()
		return identity.Profile{}, err
	}
	b.mode = ModeAuthenticated
	b.profile = profile
	b.mu.Unlock()

	b.publish(bus.Event{Kind: bus.KindLogin, Profile: profile})
	return profile, nil
}

// Logout tears the credential down. Local state always ends up anonymous and
// a logout event is always published, even when the strategy's remote call
// failed; the error is returned for logging.
func (b *Bridge) Logout(ctx context.Context) error {
	err := b.strategy.Logout(ctx)

	b.mu.Lock()
	b.mode = ModeAnonymous
	b.profile = identity.Profile{}
	b.mu.Unlock()

	b.publish(bus.Event{Kind: bus.KindLogout})
	return err
}

// Decorate attaches the strategy's auth headers to an outgoing request.
func (b *Bridge) Decorate(req *http.Request) {
	for name, values := range b.strategy.Headers() {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}
}

func (b *Bridge) setLoading(v bool) {
	b.mu.Lock()
	b.loading = v
	b.mu.Unlock()
}

func (b *Bridge) publish(e bus.Event) {
	if b.events != nil {
		b.events.Publish(e)
	}
}

// applyBusEvent mirrors transitions made by other bridges. Applying the
// bridge's own event is a no-op since the state already matches.
func (b *Bridge) applyBusEvent(e bus.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch e.Kind {
	case bus.KindLogin:
		b.mode = ModeAuthenticated
		b.profile = e.Profile
	case bus.KindLogout:
		b.mode = ModeAnonymous
		b.profile = identity.Profile{}
	}
}
