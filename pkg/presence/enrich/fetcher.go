// Package enrich looks up the country of a player's network address.
//
// A lookup asks the primary source first and the fallback second. Neither failing source nor a
// rejected address is an error to the caller: the future simply resolves to nil. Results are
// handed back as futures so the caller decides on which goroutine to apply them.
//
// Lookups are also remembered per address, so players sharing one skip the network. A lookup
// that failed on both sources is remembered for a shorter while.
package enrich

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/netip"
	"time"

	"github.com/argus-labs/presence/pkg/presence/attribute"
	"github.com/argus-labs/presence/pkg/statsd"
	"github.com/coocood/freecache"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	otelattr "go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPrimaryURL  = "http://ip-api.com/json/%s?fields=status,country,countryCode"
	DefaultFallbackURL = "https://api.iplocation.net/?ip=%s"
	DefaultTimeout     = 5 * time.Second
	DefaultTTL         = 24 * time.Hour
	DefaultFailureTTL  = time.Minute

	// 512KiB is the smallest freecache accepts.
	addrCacheBytes = 512 << 10
	maxBodyBytes   = 64 << 10
)

type Fetcher struct {
	client     *http.Client
	primary    string
	fallback   string
	ttl        time.Duration
	failureTTL time.Duration
	now        func() time.Time
	addrs      *freecache.Cache
	group      singleflight.Group
	log        zerolog.Logger
	tracer     trace.Tracer
}

func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     &http.Client{Timeout: DefaultTimeout},
		primary:    DefaultPrimaryURL,
		fallback:   DefaultFallbackURL,
		ttl:        DefaultTTL,
		failureTTL: DefaultFailureTTL,
		now:        time.Now,
		log:        zerolog.Nop(),
		tracer:     noop.NewTracerProvider().Tracer("enrich"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.addrs = freecache.NewCacheCustomTimer(addrCacheBytes, clock(f.now))
	return f
}

// clock feeds the fetcher's time source to freecache, which counts in whole seconds.
type clock func() time.Time

func (c clock) Now() uint32 {
	return uint32(c().Unix()) //nolint:gosec // seconds fit until 2106
}

// TTL returns how long a fetched country stays fresh. Zero means forever.
func (f *Fetcher) TTL() time.Duration {
	return f.ttl
}

// Routable reports whether addr can be geolocated. Loopback, private, link-local, multicast and
// unspecified addresses cannot.
func Routable(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsInterfaceLocalMulticast() &&
		!addr.IsMulticast() &&
		!addr.IsUnspecified()
}

// Fetch resolves the country of addr for player id. A fresh cached value resolves immediately.
// Concurrent fetches for the same player share one lookup.
func (f *Fetcher) Fetch(
	ctx context.Context, id uuid.UUID, addr netip.Addr, cached *attribute.Country,
) *Future[*attribute.Country] {
	if !Routable(addr) {
		return Resolved[*attribute.Country](nil)
	}
	if cached != nil && !cached.Expired(f.now(), f.ttl) {
		c := *cached
		return Resolved(&c)
	}

	future := newFuture[*attribute.Country]()
	go func() {
		v, _, _ := f.group.Do(id.String(), func() (any, error) {
			return f.lookup(ctx, addr.Unmap()), nil
		})
		country, _ := v.(*attribute.Country)
		if country != nil {
			c := *country
			country = &c
		}
		future.resolve(country)
	}()
	return future
}

func (f *Fetcher) lookup(ctx context.Context, addr netip.Addr) *attribute.Country {
	ctx, span := f.tracer.Start(ctx, "enrich.lookup", trace.WithAttributes(
		otelattr.String("addr", addr.String()),
	))
	defer span.End()

	if country, ok := f.cached(addr); ok {
		span.SetAttributes(otelattr.Bool("cached", true))
		statsd.Count("enrich.cache_hit", 1)
		return country
	}

	name, code, err := f.query(ctx, f.primary, addr, decodePrimary)
	if err != nil {
		f.log.Debug().Err(err).Str("addr", addr.String()).Msg("primary country source failed, trying fallback")
		name, code, err = f.query(ctx, f.fallback, addr, decodeFallback)
	}
	if err != nil {
		statsd.Count("enrich.failure", 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		f.log.Warn().Err(err).Str("addr", addr.String()).Msg("country lookup failed on both sources")
		// A cancelled caller says nothing about the sources.
		if ctx.Err() == nil {
			f.remember(addr, nil)
		}
		return nil
	}
	statsd.Count("enrich.success", 1)
	country := &attribute.Country{Name: name, Code: code, FetchedAt: f.now()}
	f.remember(addr, country)
	return country
}

type cachedCountry struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	FetchedAt int64  `json:"fetchedAt"`
}

// cached returns the remembered result for addr. A hit with a nil country is a remembered
// failure.
func (f *Fetcher) cached(addr netip.Addr) (*attribute.Country, bool) {
	data, err := f.addrs.Get(addr.AsSlice())
	if err != nil {
		return nil, false
	}
	if len(data) == 0 {
		return nil, true
	}
	var c cachedCountry
	if err := json.Unmarshal(data, &c); err != nil {
		f.log.Warn().Err(err).Str("addr", addr.String()).Msg("dropping unreadable address cache entry")
		f.addrs.Del(addr.AsSlice())
		return nil, false
	}
	country := &attribute.Country{Name: c.Name, Code: c.Code, FetchedAt: time.UnixMilli(c.FetchedAt).UTC()}
	if country.Expired(f.now(), f.ttl) {
		return nil, false
	}
	return country, true
}

// remember stores a result for addr. Countries live for the ttl and failures for the failure ttl;
// a zero failure ttl disables remembering failures.
func (f *Fetcher) remember(addr netip.Addr, country *attribute.Country) {
	var value []byte
	expire := ttlSeconds(f.ttl)
	if country == nil {
		if f.failureTTL <= 0 {
			return
		}
		expire = ttlSeconds(f.failureTTL)
	} else {
		data, err := json.Marshal(cachedCountry{
			Name: country.Name, Code: country.Code, FetchedAt: country.FetchedAt.UnixMilli(),
		})
		if err != nil {
			return
		}
		value = data
	}
	if err := f.addrs.Set(addr.AsSlice(), value, expire); err != nil {
		f.log.Debug().Err(err).Str("addr", addr.String()).Msg("address cache rejected entry")
	}
}

// ttlSeconds rounds d up to whole seconds. Zero means no expiry, as in freecache.
func ttlSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(min(math.Ceil(d.Seconds()), math.MaxInt32))
}

type decodeFunc func(body []byte) (name, code string, err error)

func (f *Fetcher) query(ctx context.Context, template string, addr netip.Addr, decode decodeFunc) (string, string, error) {
	url := fmt.Sprintf(template, addr.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", eris.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", "", eris.Wrapf(err, "request to %s failed", req.URL.Host)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", eris.Wrap(err, "failed to read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", eris.Errorf("%s answered %d", req.URL.Host, resp.StatusCode)
	}
	return decode(body)
}

func decodePrimary(body []byte) (string, string, error) {
	var out struct {
		Status      string `json:"status"`
		Country     string `json:"country"`
		CountryCode string `json:"countryCode"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", eris.Wrap(err, "malformed primary response")
	}
	if out.Status != "success" {
		return "", "", eris.Errorf("primary status %q", out.Status)
	}
	if out.Country == "" {
		return "", "", eris.New("primary response has no country")
	}
	return out.Country, out.CountryCode, nil
}

func decodeFallback(body []byte) (string, string, error) {
	var out struct {
		ResponseCode string `json:"response_code"`
		CountryName  string `json:"country_name"`
		CountryCode2 string `json:"country_code2"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", eris.Wrap(err, "malformed fallback response")
	}
	if out.ResponseCode != "" && out.ResponseCode != "200" {
		return "", "", eris.Errorf("fallback response code %q", out.ResponseCode)
	}
	if out.CountryName == "" || out.CountryName == "-" {
		return "", "", eris.New("fallback response has no country")
	}
	return out.CountryName, out.CountryCode2, nil
}

// -------------------------------------------------------------------------------------------------
// Options
// -------------------------------------------------------------------------------------------------

type Option func(*Fetcher)

// WithHTTPClient replaces the client. Its timeout bounds each source separately.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithTimeout sets the per-source timeout on the default client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client = &http.Client{Timeout: d}
		}
	}
}

// WithSources sets the primary and fallback URL templates. Each has one %s for the address.
func WithSources(primary, fallback string) Option {
	return func(f *Fetcher) {
		if primary != "" {
			f.primary = primary
		}
		if fallback != "" {
			f.fallback = fallback
		}
	}
}

// WithTTL sets the cache duration. Zero keeps fetched countries forever.
func WithTTL(ttl time.Duration) Option {
	return func(f *Fetcher) {
		if ttl >= 0 {
			f.ttl = ttl
		}
	}
}

// WithFailureTTL sets how long a lookup that failed on both sources is remembered for its
// address. Zero forgets failures right away.
func WithFailureTTL(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.failureTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		f.now = now
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(f *Fetcher) {
		f.log = log
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(f *Fetcher) {
		f.tracer = t
	}
}
