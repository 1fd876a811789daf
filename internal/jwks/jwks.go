// Package jwks holds the identity provider's public signing keys.
//
// The key set is loaded once when the process starts and then only read.
// A signing key rotation at the provider needs a restart or an explicit call
// to Refresh.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
)

// Fetcher retrieves the published JWK Set document.
type Fetcher interface {
	PublicKeys(ctx context.Context) (json.RawMessage, error)
}

// ErrNoKeys is returned when the document holds no RSA key.
var ErrNoKeys = errors.New("jwks: no usable keys")

// KeySet is a read-mostly set of RSA public keys by kid. The keys are
// decoded into a static, never refreshing keyfunc set; Refresh swaps in a
// new one.
type KeySet struct {
	fetcher Fetcher

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

// New returns an empty key set backed by f. Call Refresh before use.
func New(f Fetcher) *KeySet {
	return &KeySet{fetcher: f, keys: map[string]*rsa.PublicKey{}}
}

// Load builds a key set and fetches the keys once.
func Load(ctx context.Context, f Fetcher) (*KeySet, error) {
	ks := New(f)
	if err := ks.Refresh(ctx); err != nil {
		return nil, err
	}
	return ks, nil
}

// Refresh replaces the cached keys with the provider's current set. The old
// keys are kept when anything fails.
func (ks *KeySet) Refresh(ctx context.Context) error {
	raw, err := ks.fetcher.PublicKeys(ctx)
	if err != nil {
		return fmt.Errorf("fetching public keys: %w", err)
	}

	kf, err := keyfunc.NewJWKSetJSON(raw)
	if err != nil {
		return fmt.Errorf("decoding public keys: %w", err)
	}
	published, err := kf.Storage().KeyReadAll(ctx)
	if err != nil {
		return fmt.Errorf("reading public keys: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(published))
	for _, k := range published {
		pub, ok := k.Key().(*rsa.PublicKey)
		if !ok {
			continue
		}
		keys[k.Marshal().KID] = pub
	}
	if len(keys) == 0 {
		return ErrNoKeys
	}

	ks.mu.Lock()
	ks.keys = keys
	ks.mu.Unlock()
	return nil
}

// Lookup returns the key for kid.
func (ks *KeySet) Lookup(kid string) (*rsa.PublicKey, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	k, ok := ks.keys[kid]
	return k, ok
}

// Len returns the number of cached keys.
func (ks *KeySet) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys)
}

// Document encodes public keys as a JWK Set, keyed by kid.
func Document(keys map[string]*rsa.PublicKey) (json.RawMessage, error) {
	var set jwkset.JWKSMarshal
	for kid, pub := range keys {
		jwk, err := jwkset.NewJWKFromKey(pub, jwkset.JWKOptions{
			Metadata: jwkset.JWKMetadataOptions{
				ALG: jwkset.AlgRS256,
				KID: kid,
				USE: jwkset.UseSig,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("encoding key %q: %w", kid, err)
		}
		set.Keys = append(set.Keys, jwk.Marshal())
	}
	return json.Marshal(set)
}
