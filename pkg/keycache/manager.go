// Package keycache resolves the portal's public encryption key.
//
// Resolution order is remote authority, then the in-memory copy, then the
// key persisted on disk by the last successful remote fetch. The disk copy is
// only consulted when the remote fetch fails with ErrConnectivity.
package keycache

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	faults "github.com/labelport/annotation_tool/pkg/errors"
	"github.com/labelport/annotation_tool/pkg/logger"
)

// ErrConnectivity marks a fetch failure that allows falling back to the
// persisted key. Fetchers wrap it; it never carries a severity.
var ErrConnectivity = errors.New("key authority unreachable")

// DefaultFetchTimeout bounds a shared resolution once no caller waits on it
const DefaultFetchTimeout = 30 * time.Second

// Origin identifies where a cached key came from
type Origin string

const (
	OriginRemote    Origin = "remote"
	OriginLocalDisk Origin = "local_disk"
)

// Fetcher retrieves the PEM-encoded public key from the key authority
type Fetcher interface {
	FetchPublicKey(ctx context.Context) (string, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context) (string, error)

// FetchPublicKey calls f
func (f FetcherFunc) FetchPublicKey(ctx context.Context) (string, error) {
	return f(ctx)
}

// Key is a resolved RSA public key
type Key struct {
	PEM    []byte
	Public *rsa.PublicKey
	Origin Origin
}

// Fingerprint returns the SHA256 fingerprint of the key in the OpenSSH
// format, or an empty string if the key cannot be converted
func (k *Key) Fingerprint() string {
	pub, err := ssh.NewPublicKey(k.Public)
	if err != nil {
		return ""
	}
	return ssh.FingerprintSHA256(pub)
}

// Config configures a Manager
type Config struct {
	Path    string // Persisted key file
	Fetcher Fetcher
	Logger  *logger.Logger

	// FetchTimeout bounds one resolution (0 = DefaultFetchTimeout)
	FetchTimeout time.Duration

	// OnResolve is called after every successful resolution that
	// populated the cache
	OnResolve func(Origin)
}

// Manager owns the process's single cached public key
type Manager struct {
	path      string
	fetcher   Fetcher
	log       *logger.Logger
	timeout   time.Duration
	onResolve func(Origin)

	group singleflight.Group

	mu  sync.RWMutex
	key *Key
}

// New creates a key manager
func New(cfg Config) (*Manager, error) {
	if cfg.Path == "" {
		return nil, errors.New("key file path is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("key fetcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	return &Manager{
		path:      cfg.Path,
		fetcher:   cfg.Fetcher,
		log:       cfg.Logger,
		timeout:   cfg.FetchTimeout,
		onResolve: cfg.OnResolve,
	}, nil
}

// Path returns the persisted key file path
func (m *Manager) Path() string {
	return m.path
}

// Cached returns the in-memory key without resolving
func (m *Manager) Cached() *Key {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.key
}

// PublicKey returns the cached key, resolving it on first use. Concurrent
// callers share a single resolution, which is detached from any one
// caller's cancellation: a caller whose ctx ends stops waiting, the others
// still get the result. A failed resolution leaves the cache empty so the
// next call starts over.
func (m *Manager) PublicKey(ctx context.Context) (*Key, error) {
	if k := m.Cached(); k != nil {
		return k, nil
	}

	ch := m.group.DoChan("public_key", func() (any, error) {
		if k := m.Cached(); k != nil {
			return k, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()

		k, err := m.resolve(fetchCtx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.key == nil {
			m.key = k
		}
		k = m.key
		m.mu.Unlock()

		if m.onResolve != nil {
			m.onResolve(k.Origin)
		}
		return k, nil
	})

	select {
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Key), nil
	}
}

func (m *Manager) resolve(ctx context.Context) (*Key, error) {
	raw, fetchErr := m.fetcher.FetchPublicKey(ctx)
	if fetchErr == nil {
		key, err := ParsePEM([]byte(raw))
		if err != nil {
			return nil, faults.NewBuilder(faults.KindMalformedKey).
				Wrap(err).
				WithOp("keycache.PublicKey").
				WithInput("origin", OriginRemote).
				Build()
		}
		key.Origin = OriginRemote

		if err := writeAtomic(m.path, key.PEM); err != nil {
			m.log.Error("failed to persist public key", "path", m.path, "error", err)
		}
		return key, nil
	}

	if errors.Is(fetchErr, context.Canceled) {
		return nil, fetchErr
	}
	if !errors.Is(fetchErr, ErrConnectivity) {
		return nil, faults.NewBuilder(faults.KindKeyUnavailable).
			Wrap(fetchErr).
			WithOp("keycache.PublicKey").
			Build()
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, faults.NewBuilder(faults.KindKeyUnavailable).
			Wrap(errors.Join(fetchErr, fmt.Errorf("read persisted key: %w", err))).
			WithOp("keycache.PublicKey").
			WithInput("path", m.path).
			Build()
	}

	key, err := ParsePEM(data)
	if err != nil {
		return nil, faults.NewBuilder(faults.KindMalformedKey).
			Wrap(err).
			WithOp("keycache.PublicKey").
			WithInput("origin", OriginLocalDisk).
			WithInput("path", m.path).
			Build()
	}
	key.Origin = OriginLocalDisk
	return key, nil
}

// Reset drops the cached key. For test harnesses only.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.key = nil
	m.mu.Unlock()
}
