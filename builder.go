package credlock

import (
	"errors"
	"strings"
	"time"

	"github.com/credlock/credlock/jwt"
	"github.com/credlock/credlock/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. All With* methods return the receiver for
// chaining; Build may be called once.
type Builder struct {
	config Config
	redis  *redis.Client

	directory UserDirectory
	mailer    Mailer
	auditSink AuditSink

	built bool
}

// New returns a Builder carrying [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs the ephemeral stores (second-factor challenges, reset
// tokens) with Redis. Without it they live in process memory, which is fine
// for a single instance but not for a fleet.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithDirectory sets the account store. Required.
func (b *Builder) WithDirectory(d UserDirectory) *Builder {
	b.directory = d
	return b
}

// WithMailer sets the outbound message collaborator. Required for
// second-factor challenges and password-reset delivery.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink sets the audit destination. Without one, enabled audit
// events go to a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("a UserDirectory is required")
	}
	if b.mailer == nil {
		return nil, errors.New("a Mailer is required")
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		directory: b.directory,
		mailer:    b.mailer,
		hasher:    hasher,
		metrics:   NewMetrics(cfg.Metrics),
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
		now:       time.Now,
	}

	if b.redis != nil {
		engine.twoFactor = newRedisTwoFactorStore(b.redis)
		engine.resets = newRedisResetTokenStore(b.redis)
	} else {
		engine.twoFactor = newMemoryTwoFactorStore()
		engine.resets = newMemoryResetTokenStore()
	}

	if cfg.Session.SignedEnvelope {
		method := jwt.MethodEd25519
		if strings.EqualFold(cfg.Session.SigningMethod, "hs256") {
			method = jwt.MethodHS256
		}
		manager, err := jwt.NewManager(jwt.Config{
			TTL:           cfg.Session.EnvelopeTTL,
			SigningMethod: method,
			PrivateKey:    cfg.Session.PrivateKey,
			PublicKey:     cfg.Session.PublicKey,
			Issuer:        "credlock",
		})
		if err != nil {
			return nil, err
		}
		engine.envelopes = manager
	}

	b.built = true
	return engine, nil
}
