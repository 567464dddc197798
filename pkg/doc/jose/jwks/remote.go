/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jwks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-jose/go-jose/v3"
	"github.com/hyperledger/aries-framework-go/component/log"
	pkgerrors "github.com/pkg/errors"
)

// DefaultRetryInterval is the pause between two attempts of a failed key set fetch.
const DefaultRetryInterval = 500 * time.Millisecond

const (
	defaultCacheSize          = 100
	defaultCacheTTL           = 10 * time.Minute
	defaultMinRefreshInterval = 30 * time.Second
	defaultMaxRetries         = 3
	defaultTimeout            = 10 * time.Second
	maxKeySetSize             = 1 << 20
)

var logger = log.New("agevault/jwks")

// RemoteResolver resolves keys from a key set published over HTTP.
// Keys are cached by key ID and a cache miss refetches the key set, so keys added by a rotation are picked up
// without a restart.
type RemoteResolver struct {
	url                string
	client             *http.Client
	cache              gcache.Cache
	cacheSize          int
	cacheTTL           time.Duration
	minRefreshInterval time.Duration
	maxRetries         uint64
	retryInterval      time.Duration

	mu          sync.Mutex
	lastRefresh time.Time
	now         func() time.Time
}

// RemoteOption configures a RemoteResolver.
type RemoteOption func(r *RemoteResolver)

// WithHTTPClient sets the client used to fetch the key set.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(r *RemoteResolver) {
		r.client = client
	}
}

// WithCacheTTL sets how long fetched keys are served without refetching.
func WithCacheTTL(ttl time.Duration) RemoteOption {
	return func(r *RemoteResolver) {
		r.cacheTTL = ttl
	}
}

// WithCacheSize sets the maximum number of cached keys.
func WithCacheSize(size int) RemoteOption {
	return func(r *RemoteResolver) {
		r.cacheSize = size
	}
}

// WithMinRefreshInterval sets the minimum time between two fetches triggered by unknown key IDs.
func WithMinRefreshInterval(d time.Duration) RemoteOption {
	return func(r *RemoteResolver) {
		r.minRefreshInterval = d
	}
}

// WithRetry sets how often and how far apart a failed fetch is retried.
func WithRetry(maxRetries uint64, interval time.Duration) RemoteOption {
	return func(r *RemoteResolver) {
		r.maxRetries = maxRetries
		r.retryInterval = interval
	}
}

// NewRemoteResolver returns a resolver for the key set published at url.
func NewRemoteResolver(url string, opts ...RemoteOption) *RemoteResolver {
	r := &RemoteResolver{
		url:                url,
		client:             &http.Client{Timeout: defaultTimeout},
		cacheSize:          defaultCacheSize,
		cacheTTL:           defaultCacheTTL,
		minRefreshInterval: defaultMinRefreshInterval,
		maxRetries:         defaultMaxRetries,
		retryInterval:      DefaultRetryInterval,
		now:                time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.cache = gcache.New(r.cacheSize).LRU().Expiration(r.cacheTTL).Build()

	return r
}

// URL returns the key set location.
func (r *RemoteResolver) URL() string {
	return r.url
}

// Resolve returns the key with the given key ID, fetching the key set when the key is not cached.
func (r *RemoteResolver) Resolve(kid string) (*jose.JSONWebKey, error) {
	if key, ok := r.cached(kid); ok {
		return key, nil
	}

	if err := r.refresh(kid); err != nil {
		return nil, err
	}

	if key, ok := r.cached(kid); ok {
		return key, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
}

func (r *RemoteResolver) cached(kid string) (*jose.JSONWebKey, bool) {
	v, err := r.cache.Get(kid)
	if err != nil {
		return nil, false
	}

	key, ok := v.(jose.JSONWebKey)
	if !ok {
		return nil, false
	}

	return &key, true
}

func (r *RemoteResolver) refresh(kid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// fetched by a concurrent caller while waiting for the lock
	if r.cache.Has(kid) {
		return nil
	}

	if !r.lastRefresh.IsZero() && r.now().Sub(r.lastRefresh) < r.minRefreshInterval {
		logger.Debugf("key set at %s refreshed recently, not refetching for kid %s", r.url, kid)

		return nil
	}

	keySet, err := r.fetchWithRetry()

	r.lastRefresh = r.now()

	if err != nil {
		return err
	}

	for id, key := range index(*keySet) {
		if err := r.cache.Set(id, key); err != nil {
			return fmt.Errorf("cache key %s: %w", id, err)
		}
	}

	return nil
}

func (r *RemoteResolver) fetchWithRetry() (*jose.JSONWebKeySet, error) {
	var keySet *jose.JSONWebKeySet

	err := backoff.RetryNotify(
		func() error {
			var fetchErr error

			keySet, fetchErr = r.fetch()

			return fetchErr
		},
		backoff.WithMaxRetries(backoff.NewConstantBackOff(r.retryInterval), r.maxRetries),
		func(retryErr error, delay time.Duration) {
			logger.Warnf("failed to fetch key set from %s, retrying in %s: %s", r.url, delay, retryErr.Error())
		},
	)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "fetch key set from %s", r.url)
	}

	return keySet, nil
}

func (r *RemoteResolver) fetch() (*jose.JSONWebKeySet, error) {
	req, err := http.NewRequest(http.MethodGet, r.url, nil) //nolint:noctx
	if err != nil {
		return nil, backoff.Permanent(pkgerrors.Wrap(err, "create key set request"))
	}

	req.Header.Add("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "key set request failed")
	}

	defer closeResponseBody(resp.Body)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetSize))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "read key set response")
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("key set endpoint returned status %d", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("key set endpoint returned status %d", resp.StatusCode))
	}

	var keySet jose.JSONWebKeySet

	if err := json.Unmarshal(body, &keySet); err != nil {
		return nil, backoff.Permanent(pkgerrors.Wrap(err, "parse key set"))
	}

	return &keySet, nil
}

func closeResponseBody(respBody io.Closer) {
	if err := respBody.Close(); err != nil && !errors.Is(err, http.ErrBodyReadAfterClose) {
		logger.Errorf("failed to close response body: %s", err.Error())
	}
}
