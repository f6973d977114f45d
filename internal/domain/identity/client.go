package identity

import (
	"context"
	"sync"
)

// Listener receives the current identity, nil meaning signed out. It is
// called synchronously from the goroutine that caused the change, one
// delivery at a time and in the order the changes were made. A listener must
// not change the identity of the client it listens to.
type Listener func(ctx context.Context, id *Identity)

// Client is the identity state of one browser session. It is safe for
// concurrent use.
type Client struct {
	password  PasswordAuthenticator
	federated FederatedAuthenticator

	// deliver is held from committing a change until every listener has seen
	// it, so listeners observe changes in commit order.
	deliver sync.Mutex

	mu        sync.Mutex
	current   *Identity
	listeners map[int]Listener
	nextID    int
}

// NewClient returns a signed-out client. federated may be nil.
func NewClient(password PasswordAuthenticator, federated FederatedAuthenticator) *Client {
	return &Client{
		password:  password,
		federated: federated,
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers l and immediately delivers the current identity to it.
// The returned function removes the listener.
func (c *Client) Subscribe(ctx context.Context, l Listener) (unsubscribe func()) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	cur := c.current
	c.mu.Unlock()

	l(ctx, cloneIdentity(cur))

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Current returns the signed-in identity or nil.
func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneIdentity(c.current)
}

// SignInWithPassword authenticates an email/password account.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Identity, error) {
	id, err := c.password.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.set(ctx, id)
	return cloneIdentity(id), nil
}

// SignUpWithPassword registers a new account and signs it in.
func (c *Client) SignUpWithPassword(ctx context.Context, cred Credentials) (*Identity, error) {
	id, err := c.password.Register(ctx, cred)
	if err != nil {
		return nil, err
	}
	c.set(ctx, id)
	return cloneIdentity(id), nil
}

// FederatedURL returns the consent page URL of the federated provider.
func (c *Client) FederatedURL(state string) (string, error) {
	if c.federated == nil {
		return "", ErrFederatedDisabled
	}
	return c.federated.AuthCodeURL(state), nil
}

// CompleteFederated exchanges the authorization code returned by the
// federated provider and signs the resulting identity in.
func (c *Client) CompleteFederated(ctx context.Context, code string) (*Identity, error) {
	if c.federated == nil {
		return nil, ErrFederatedDisabled
	}
	if code == "" {
		return nil, ErrPopupClosed
	}
	id, err := c.federated.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	c.set(ctx, id)
	return cloneIdentity(id), nil
}

// Restore signs id in without checking credentials. It is used to rebuild a
// session whose identity was already verified.
func (c *Client) Restore(ctx context.Context, id Identity) {
	c.set(ctx, &id)
}

// Refresh re-delivers the current identity to every listener, as a token
// refresh does.
func (c *Client) Refresh(ctx context.Context) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	cur := c.current
	c.mu.Unlock()
	c.notify(ctx, cur)
}

// SignOut clears the identity.
func (c *Client) SignOut(ctx context.Context) {
	c.set(ctx, nil)
}

func (c *Client) set(ctx context.Context, id *Identity) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	c.current = cloneIdentity(id)
	cur := c.current
	c.mu.Unlock()
	c.notify(ctx, cur)
}

func (c *Client) notify(ctx context.Context, id *Identity) {
	c.mu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	for _, l := range ls {
		l(ctx, cloneIdentity(id))
	}
}

func cloneIdentity(id *Identity) *Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
