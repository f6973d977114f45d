// Package catalog is a read-only client of a fakestoreapi-compatible product
// catalog.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
)

// DefaultBaseURL is the public fakestoreapi endpoint.
const DefaultBaseURL = "https://fakestoreapi.com"

// ErrUnavailable is returned while the catalog is failing and requests are
// short-circuited.
var ErrUnavailable = errors.New("catalog unavailable")

var _ product.Catalog = (*Client)(nil)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration

	// Logger receives breaker state changes.
	Logger *zap.Logger

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

func (c *Config) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Client fetches products over HTTP. Concurrent identical requests share one
// round trip.
type Client struct {
	base    *url.URL
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	group   singleflight.Group
}

// New returns a Client for cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	cfg.setDefaults()
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}

	var opts []otelhttp.Option
	if cfg.MeterProvider != nil {
		opts = append(opts, otelhttp.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(cfg.TracerProvider))
	}

	threshold := cfg.FailureThreshold
	return &Client{
		base: base,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport, opts...),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:    "catalog",
			Timeout: cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, product.ErrNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				cfg.Logger.Warn("Breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}, nil
}

// List returns all products.
func (c *Client) List(ctx context.Context) ([]product.Product, error) {
	body, err := c.fetch(ctx, "/products")
	if err != nil {
		return nil, err
	}
	return decodeProducts(body)
}

// ListByCategory returns the products of category.
func (c *Client) ListByCategory(ctx context.Context, category string) ([]product.Product, error) {
	body, err := c.fetch(ctx, "/products/category/"+url.PathEscape(category))
	if err != nil {
		return nil, err
	}
	return decodeProducts(body)
}

// Get returns the product with id or product.ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (*product.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, product.ErrNotFound
	}
	body, err := c.fetch(ctx, "/products/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	// fakestoreapi answers unknown ids with 200 and an empty body.
	if isBlank(body) {
		return nil, product.ErrNotFound
	}
	p, err := decodeProduct(jx.DecodeBytes(body))
	if err != nil {
		return nil, errors.Wrap(err, "decode product")
	}
	return p, nil
}

// Check fails while the breaker is open, i.e. the upstream is considered
// down and catalog calls fail fast with ErrUnavailable.
func (c *Client) Check(context.Context) error {
	if st := c.breaker.State(); st == gobreaker.StateOpen {
		return errors.Errorf("catalog breaker is %s", st)
	}
	return nil
}

// fetch coalesces concurrent requests for path. The shared round trip is
// detached from the caller that started it and bounded by the client timeout,
// so one cancelled caller neither fails the others nor trips the breaker.
func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(path, func() (any, error) {
		return c.breaker.Execute(func() ([]byte, error) {
			return c.get(shared, path)
		})
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		if errors.Is(res.Err, gobreaker.ErrOpenState) || errors.Is(res.Err, gobreaker.ErrTooManyRequests) {
			return nil, ErrUnavailable
		}
		return nil, res.Err
	}
	return res.Val.([]byte), nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", path)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, product.ErrNotFound
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("get %s: unexpected status %d", path, resp.StatusCode)
	}
	return body, nil
}

func isBlank(body []byte) bool {
	b := bytes.TrimSpace(body)
	return len(b) == 0 || bytes.Equal(b, []byte("null"))
}

func decodeProducts(body []byte) ([]product.Product, error) {
	if isBlank(body) {
		return nil, nil
	}
	var out []product.Product
	d := jx.DecodeBytes(body)
	if err := d.Arr(func(d *jx.Decoder) error {
		p, err := decodeProduct(d)
		if err != nil {
			return err
		}
		out = append(out, *p)
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return out, nil
}

func decodeProduct(d *jx.Decoder) (*product.Product, error) {
	var p product.Product
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			p.ID, err = cart.DecodeLooseString(d)
		case "title":
			p.Title, err = d.Str()
		case "price":
			p.Price, err = cart.DecodeDecimal(d)
		case "description":
			p.Description, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "image":
			p.Image, err = d.Str()
		case "rating":
			err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				switch string(key) {
				case "rate":
					r, err := cart.DecodeDecimal(d)
					p.Rating.Rate = r
					return err
				case "count":
					n, err := d.Int()
					p.Rating.Count = n
					return err
				default:
					return d.Skip()
				}
			})
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, product.ErrNotFound
	}
	return &p, nil
}
