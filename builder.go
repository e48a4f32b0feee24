package authority

import (
	"errors"
	"time"

	"github.com/axisboard/authority/cache"
	"github.com/axisboard/authority/csrf"
	internalaudit "github.com/axisboard/authority/internal/audit"
	"github.com/axisboard/authority/internal/rate"
	"github.com/axisboard/authority/store"
	"github.com/axisboard/authority/store/redisstore"
	"github.com/axisboard/authority/token"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. Supply a token store (or a Redis client
// to use the built-in store), an identity provider, and signing material,
// then call Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	tokenStore store.TokenStore
	identity   IdentityProvider
	auditSink  AuditSink
	logger     *zerolog.Logger

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies a Redis client. Unless WithTokenStore overrides it,
// the engine persists through the Redis-backed token store; the client
// also backs the optional refresh throttle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTokenStore supplies an explicit [store.TokenStore], overriding the
// Redis-backed default.
func (b *Builder) WithTokenStore(s store.TokenStore) *Builder {
	b.tokenStore = s
	return b
}

// WithIdentityProvider supplies the durable identity store consulted for
// role re-derivation.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identity = p
	return b
}

// WithAuditSink supplies the sink receiving in-process audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger supplies the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// Build validates the configuration, wires the components, and returns a
// ready engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}
	if b.tokenStore == nil && b.redis == nil {
		return nil, errors.New("token store or redis client required")
	}
	if cfg.Security.EnableRefreshThrottle && b.redis == nil {
		return nil, errors.New("refresh throttle requires redis client")
	}

	codec, err := token.NewCodec(token.Config{
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		Leeway:        cfg.Token.Leeway,
		KeyID:         cfg.Token.KeyID,
	})
	if err != nil {
		return nil, err
	}

	tokenStore := b.tokenStore
	if tokenStore == nil {
		tokenStore = redisstore.New(b.redis, redisstore.Config{
			Prefix:     "authority",
			RefreshTTL: cfg.Token.RefreshTTL,
		})
	}

	var validationCache, roleCache cache.Cache = cache.Nop{}, cache.Nop{}
	if cfg.Cache.Enabled {
		validationCache = cache.NewTTL(0)
		roleCache = cache.NewTTL(0)
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	engine := &Engine{
		config:          cfg,
		tokenStore:      tokenStore,
		codec:           codec,
		guard:           csrf.NewGuard(),
		identity:        b.identity,
		validationCache: validationCache,
		roleCache:       roleCache,
		metrics:         NewMetrics(cfg.Metrics),
		logger:          logger,
		now:             time.Now,
	}
	engine.mintCSRF = engine.guard.Mint

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
		MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
		RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
	})
	if cfg.Audit.Enabled {
		engine.audit = internalaudit.NewDispatcher(b.auditSink, cfg.Audit.BufferSize, cfg.Audit.DropIfFull)
	}

	b.built = true

	return engine, nil
}

func newID() string {
	return uuid.NewString()
}
