package keyedstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound        = errors.New("keyedstore: not found")
	ErrInvalidArgument = errors.New("keyedstore: invalid argument")
	ErrConfiguration   = errors.New("keyedstore: configuration error")
	ErrTypeMismatch    = errors.New("keyedstore: type mismatch")
)

// Option customizes Store behavior.
type Option func(*storeConfig)

type storeConfig struct {
	backend    Backend
	prefix     string
	sqlitePath string
	logger     Logger
	logTag     string
}

// WithBackend injects an explicit storage backend, replacing the
// well-known handle the Kind would otherwise select. Useful for tests
// and for server-backed storage (see NewRedis).
func WithBackend(b Backend) Option {
	return func(c *storeConfig) {
		if b != nil {
			c.backend = b
		}
	}
}

// WithPrefix scopes the store to a namespace at construction time.
// Equivalent to calling NS on an unscoped store.
func WithPrefix(prefix string) Option {
	return func(c *storeConfig) {
		c.prefix = prefix
	}
}

// WithSQLitePath places the Persistent backend at a specific file
// instead of the shared default location. Ignored for Session stores
// and when WithBackend is given.
func WithSQLitePath(path string) Option {
	return func(c *storeConfig) {
		c.sqlitePath = path
	}
}

// WithLogger specifies a logger for operation logging.
// If not provided, a no-op logger is used (no logging).
func WithLogger(logger Logger) Option {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithLogTag sets a tag prefix for all log messages.
// Useful for identifying the source of logs in multi-store scenarios.
func WithLogTag(tag string) Option {
	return func(c *storeConfig) {
		c.logTag = tag
	}
}

// SetOption customizes a single write. Omitted options fall back to the
// values recorded in the key's previous envelope, if any.
type SetOption func(*setConfig)

type setConfig struct {
	typ        ValueType
	hasType    bool
	strict     bool
	hasStrict  bool
	expires    any
	hasExpires bool
}

// WithType declares the runtime type recorded and enforced for the value.
func WithType(typ ValueType) SetOption {
	return func(c *setConfig) {
		c.typ = typ
		c.hasType = true
	}
}

// WithStrict toggles type enforcement for the entry. Strict entries are
// validated on write and re-validated on read. Defaults to true for keys
// with no previous envelope.
func WithStrict(strict bool) SetOption {
	return func(c *setConfig) {
		c.strict = strict
		c.hasStrict = true
	}
}

// WithExpires sets a time-to-live for the entry; see ParseExpires for
// the accepted forms. Expiry is lazy: an expired entry is removed the
// next time it is read, not by a background sweep.
func WithExpires(expires any) SetOption {
	return func(c *setConfig) {
		c.expires = expires
		c.hasExpires = true
	}
}

// Entry is one element of a SetMany batch.
type Entry struct {
	Key     string
	Value   any
	Options []SetOption
}

// Store exposes typed, optionally namespaced KV storage over a Backend.
// Stored values carry a type tag, a strictness flag, and an optional
// expiration; see Set.
type Store interface {
	// NS returns an independent Store over the same backend, scoped to
	// the given namespace. Keys are stored as "name:businessKey".
	NS(name string) (Store, error)

	// Keys returns the cached set of full (prefixed) keys currently
	// visible to this instance. The cache is recomputed after every
	// mutating call, not on read.
	Keys() []string

	Set(ctx context.Context, key string, value any, opts ...SetOption) error
	SetMany(ctx context.Context, entries []Entry) error
	SetMap(ctx context.Context, values map[string]any) error

	Get(ctx context.Context, key string) (any, error)
	Has(ctx context.Context, key string) (bool, error)
	IsExpired(ctx context.Context, key string) (bool, error)

	Remove(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	GetAll(ctx context.Context) (map[string]any, error)
}

type store struct {
	kind    Kind
	prefix  string
	backend Backend
	logger  Logger
	logTag  string

	mu   sync.RWMutex
	keys []string
}

// New creates a Store bound to one of the well-known backends.
// Both the backend and the prefix are fixed for the life of the instance.
func New(kind Kind, opts ...Option) (Store, error) {
	cfg := storeConfig{logger: defaultLogger}
	for _, opt := range opts {
		opt(&cfg)
	}

	if kind != Session && kind != Persistent {
		return nil, fmt.Errorf("%w: unknown backend kind %q", ErrInvalidArgument, kind)
	}

	backend := cfg.backend
	if backend == nil {
		if kind == Session {
			backend = sessionBackend()
		} else {
			var err error
			if cfg.sqlitePath != "" {
				backend, err = NewSQLite(cfg.sqlitePath)
			} else {
				backend, err = persistentBackend()
			}
			if err != nil {
				return nil, err
			}
		}
	}

	s := &store{
		kind:    kind,
		prefix:  cfg.prefix,
		backend: backend,
		logger:  cfg.logger,
		logTag:  cfg.logTag,
	}
	s.refreshKeys(context.Background())
	return s, nil
}

// NS derives a namespace-scoped sibling. The new instance shares the
// backend but nothing else; in particular its key cache is its own.
func (s *store) NS(name string) (Store, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: namespace name must be a non-empty string", ErrInvalidArgument)
	}

	ns := &store{
		kind:    s.kind,
		prefix:  name,
		backend: s.backend,
		logger:  s.logger,
		logTag:  s.logTag,
	}
	ns.refreshKeys(context.Background())
	return ns, nil
}

func (s *store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *store) localKey(full string) string {
	if s.prefix == "" {
		return full
	}
	return strings.TrimPrefix(full, s.prefix+":")
}

// owns reports whether a full backend key belongs to this instance's
// namespace. An unscoped store owns every key.
func (s *store) owns(full string) bool {
	if s.prefix == "" {
		return true
	}
	return strings.HasPrefix(full, s.prefix+":")
}

// refreshKeys rescans the backend and replaces the visible-key cache.
// A full rescan (not an incremental patch) keeps the cache consistent
// with writes made by other instances sharing the backend.
func (s *store) refreshKeys(ctx context.Context) {
	all, err := s.backend.Keys(ctx)
	if err != nil {
		s.logf("warn", ctx, "key scan failed: %v", err)
		return
	}

	visible := make([]string, 0, len(all))
	for _, k := range all {
		if s.owns(k) {
			visible = append(visible, k)
		}
	}

	s.mu.Lock()
	s.keys = visible
	s.mu.Unlock()
}

func (s *store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.keys...)
}

func (s *store) logf(level string, ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if s.logTag != "" {
		msg = s.logTag + " " + msg
	}
	switch level {
	case "info":
		s.logger.Info(ctx, msg)
	case "warn":
		s.logger.Warn(ctx, msg)
	case "error":
		s.logger.Error(ctx, msg)
	case "debug":
		s.logger.Debug(ctx, msg)
	}
}

// readEnvelope fetches and parses the raw envelope under a full key.
// Absent and unparsable records both come back as not-ok; a corrupt
// record additionally logs a warning.
func (s *store) readEnvelope(ctx context.Context, full string) (envelope, bool) {
	raw, err := s.backend.GetItem(ctx, full)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logf("error", ctx, "Get %s failed: %v", full, err)
		}
		return envelope{}, false
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		s.logf("warn", ctx, "Get %s: corrupt envelope ignored: %v", full, err)
		return envelope{}, false
	}
	return env, true
}

// writeEntry applies the Set resolution rules for a single key without
// touching the key cache. Set and the batch operations share it.
func (s *store) writeEntry(ctx context.Context, key string, value any, opts []SetOption) error {
	if key == "" {
		return fmt.Errorf("%w: key must be a non-empty string", ErrInvalidArgument)
	}

	var cfg setConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// Omitted type/strict carry forward from the previous envelope. An
	// expired envelope is logically absent and contributes nothing.
	// With no previous envelope, strict defaults to true.
	typ := cfg.typ
	strict := true
	if cfg.hasStrict {
		strict = cfg.strict
	}
	full := s.fullKey(key)
	if !cfg.hasType || !cfg.hasStrict {
		if prev, ok := s.readEnvelope(ctx, full); ok && !prev.expired(time.Now()) {
			if !cfg.hasType {
				typ = prev.Type
			}
			if !cfg.hasStrict {
				strict = prev.Strict
			}
		}
	}

	if strict && typ == "" {
		return fmt.Errorf("%w: type is required when strict is true", ErrConfiguration)
	}
	if !strict && typ == "" {
		typ = TypeNone
	}
	if strict {
		if err := validateValue(value, typ); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}

	var expiresAt *int64
	if cfg.hasExpires && cfg.expires != nil {
		ttl, err := ParseExpires(cfg.expires)
		if err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		at := time.Now().Add(ttl).UnixMilli()
		expiresAt = &at
	}

	raw, err := envelope{Value: value, Type: typ, Strict: strict, ExpiresAt: expiresAt}.encode()
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrInvalidArgument, key, err)
	}

	if err := s.backend.SetItem(ctx, full, raw); err != nil {
		s.logf("error", ctx, "Set %s failed: %v", key, err)
		return err
	}
	return nil
}

func (s *store) Set(ctx context.Context, key string, value any, opts ...SetOption) error {
	if err := s.writeEntry(ctx, key, value, opts); err != nil {
		return err
	}
	s.refreshKeys(ctx)
	return nil
}

// SetMany writes a batch of entries with a single key-cache refresh at
// the end instead of one per entry. The first failing entry aborts the
// batch; entries already written stay written (no rollback).
func (s *store) SetMany(ctx context.Context, entries []Entry) error {
	defer s.refreshKeys(ctx)

	for _, e := range entries {
		if err := s.writeEntry(ctx, e.Key, e.Value, e.Options); err != nil {
			return err
		}
	}
	return nil
}

// SetMap is the mapping form of SetMany: plain values, no per-entry
// options. Iteration order is unspecified, which only matters for which
// entries land before a failure.
func (s *store) SetMap(ctx context.Context, values map[string]any) error {
	defer s.refreshKeys(ctx)

	for k, v := range values {
		if err := s.writeEntry(ctx, k, v, nil); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value stored under key, or ErrNotFound when the key
// is absent, expired, or its envelope is corrupt. Expired entries are
// removed on the way out (lazy expiry). Strict entries are re-validated
// against their recorded type; a mismatch is reported as ErrTypeMismatch
// rather than absence, since it means the backend was modified
// out-of-band.
func (s *store) Get(ctx context.Context, key string) (any, error) {
	full := s.fullKey(key)

	raw, err := s.backend.GetItem(ctx, full)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		s.logf("error", ctx, "Get %s failed: %v", key, err)
		return nil, err
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		s.logf("warn", ctx, "Get %s: corrupt envelope ignored: %v", key, err)
		return nil, ErrNotFound
	}

	if env.expired(time.Now()) {
		if err := s.Remove(ctx, key); err != nil {
			s.logf("error", ctx, "Get %s: expired entry removal failed: %v", key, err)
		}
		return nil, ErrNotFound
	}

	if env.Strict && env.Type != TypeNone {
		if err := validateValue(env.Value, env.Type); err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
	}

	return env.Value, nil
}

// Has reports whether Get would find the key. It is defined via Get, so
// it triggers the same lazy expiry cleanup.
func (s *store) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsExpired probes the raw envelope without mutating storage: the entry
// stays in place until the next Get or Has. Absent, unparsable, and
// non-expiring keys all report false.
func (s *store) IsExpired(ctx context.Context, key string) (bool, error) {
	raw, err := s.backend.GetItem(ctx, s.fullKey(key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	env, err := decodeEnvelope(raw)
	if err != nil {
		return false, nil
	}
	return env.expired(time.Now()), nil
}

// Remove deletes the key unconditionally. Removing an absent key is not
// an error.
func (s *store) Remove(ctx context.Context, key string) error {
	if err := s.backend.RemoveItem(ctx, s.fullKey(key)); err != nil {
		s.logf("error", ctx, "Remove %s failed: %v", key, err)
		return err
	}
	s.refreshKeys(ctx)
	return nil
}

// Clear removes every key in this instance's namespace. An unscoped
// store clears the entire backend.
func (s *store) Clear(ctx context.Context) error {
	if s.prefix == "" {
		if err := s.backend.Clear(ctx); err != nil {
			s.logf("error", ctx, "Clear failed: %v", err)
			return err
		}
		s.refreshKeys(ctx)
		return nil
	}

	all, err := s.backend.Keys(ctx)
	if err != nil {
		s.logf("error", ctx, "Clear key scan failed: %v", err)
		return err
	}
	for _, full := range all {
		if !s.owns(full) {
			continue
		}
		if err := s.backend.RemoveItem(ctx, full); err != nil {
			s.logf("error", ctx, "Clear remove %s failed: %v", full, err)
			return err
		}
	}

	s.refreshKeys(ctx)
	return nil
}

// GetAll collects every live value in the namespace, keyed by local
// (unprefixed) key. Entries that are expired, corrupt, or fail their
// strict re-validation are silently omitted.
func (s *store) GetAll(ctx context.Context) (map[string]any, error) {
	result := make(map[string]any)

	for _, full := range s.Keys() {
		local := s.localKey(full)
		value, err := s.Get(ctx, local)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTypeMismatch) || errors.Is(err, ErrConfiguration) {
				continue
			}
			return nil, err
		}
		result[local] = value
	}

	return result, nil
}
