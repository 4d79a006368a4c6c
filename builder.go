package zuauth

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/zuauth/internal/audit"
	"github.com/MrEthical07/zuauth/internal/rate"
	"github.com/MrEthical07/zuauth/internal/stores"
	"github.com/MrEthical07/zuauth/jwt"
	"github.com/MrEthical07/zuauth/pcd"
	"github.com/MrEthical07/zuauth/pcd/groth16"
	"github.com/MrEthical07/zuauth/pcd/zkticket"
	"github.com/MrEthical07/zuauth/session"
	"github.com/redis/go-redis/v9"
)

// NullifierStore is the replay guard consulted by [Engine.Authenticate].
// Claim must be an atomic insert-if-absent.
type NullifierStore = stores.NullifierStore

// NullifierRecord is persisted for every accepted nullifier.
type NullifierRecord = stores.NullifierRecord

// NewMemoryNullifierStore returns a process-local [NullifierStore].
func NewMemoryNullifierStore() NullifierStore {
	return stores.NewMemoryNullifierStore()
}

// Builder defines a public type used by zuauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	verifyingKey *groth16.VerifyingKey
	packages     []pcd.Package
	nullifiers   NullifierStore

	logger    *slog.Logger
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New starts from [DefaultConfig]. New does not mutate shared global state.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing sessions, nullifiers and rate limits.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithVerifyingKey registers the ZK ticket package for the given circuit key
// as the default PCD type.
func (b *Builder) WithVerifyingKey(vk *groth16.VerifyingKey) *Builder {
	b.verifyingKey = vk
	return b
}

// WithPCDPackage registers an additional PCD type. Without a verifying key
// the first registered package handles untyped payloads.
func (b *Builder) WithPCDPackage(p pcd.Package) *Builder {
	b.packages = append(b.packages, p)
	return b
}

// WithNullifierStore overrides the replay guard selected by Config.Replay.
func (b *Builder) WithNullifierStore(store NullifierStore) *Builder {
	b.nullifiers = store
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink only takes effect when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, derives session keys from the cookie
// password and wires every component. A Builder can be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		if cfg.Session.Mode == session.ModeRedis {
			return nil, errors.New("redis session mode requires redis client")
		}
		if b.nullifiers == nil && !cfg.Replay.InMemory {
			return nil, errors.New("redis replay store requires redis client")
		}
		if cfg.Security.EnableNonceThrottle || cfg.Security.EnableAuthThrottle {
			return nil, errors.New("Security throttles require redis client")
		}
	}

	// -------- PROOF VERIFIER --------
	packages := append([]pcd.Package(nil), b.packages...)
	if b.verifyingKey != nil {
		ticket, err := zkticket.NewPackage(b.verifyingKey)
		if err != nil {
			return nil, err
		}
		packages = append([]pcd.Package{ticket}, packages...)
	}
	if len(packages) == 0 {
		return nil, errors.New("verifying key or pcd package required")
	}
	verifier, err := pcd.NewVerifier(packages[0], packages[1:]...)
	if err != nil {
		return nil, err
	}
	if cfg.Auth.RequireTrustedSigner {
		if err := verifier.RequireSigner(cfg.Auth.TrustedSigner); err != nil {
			return nil, err
		}
	}

	// -------- SESSIONS --------
	ring, err := session.DeriveKeyring(cfg.Session.Password, cfg.Session.PreviousPasswords)
	if err != nil {
		return nil, err
	}
	var (
		store  *session.Store
		tokens session.TokenCodec
	)
	if cfg.Session.Mode == session.ModeRedis {
		store = session.NewStore(b.redis, cfg.Session.RedisPrefix)
		verifyKeys := make(map[string][]byte, len(ring))
		for _, k := range ring {
			verifyKeys[k.ID] = k.Signing
		}
		jm, err := jwt.NewManager(jwt.Config{
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    ring[0].Signing,
			KeyID:         ring[0].ID,
			VerifyKeys:    verifyKeys,
			Issuer:        cfg.Session.Issuer,
			Audience:      cfg.Session.Audience,
		})
		if err != nil {
			return nil, err
		}
		tokens = jm
	}
	sessions, err := session.NewManager(session.Config{
		Mode:              cfg.Session.Mode,
		CookieName:        cfg.Session.CookieName,
		Password:          cfg.Session.Password,
		PreviousPasswords: cfg.Session.PreviousPasswords,
		TTL:               cfg.Session.TTL,
		Secure:            cfg.Security.ProductionMode,
	}, store, tokens)
	if err != nil {
		return nil, err
	}

	// -------- REPLAY GUARD --------
	nullifiers := b.nullifiers
	if nullifiers == nil {
		if cfg.Replay.InMemory {
			nullifiers = stores.NewMemoryNullifierStore()
		} else {
			nullifiers = stores.NewRedisNullifierStore(b.redis, cfg.Replay.RedisPrefix, cfg.Replay.Retention)
		}
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		redis:      b.redis,
		sessions:   sessions,
		verifier:   verifier,
		nullifiers: nullifiers,
		logger:     logger,
	}
	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableNonceThrottle: cfg.Security.EnableNonceThrottle,
			EnableAuthThrottle:  cfg.Security.EnableAuthThrottle,
			MaxNonceRequests:    cfg.Security.MaxNonceRequests,
			NonceWindow:         cfg.Security.NonceWindow,
			MaxAuthAttempts:     cfg.Security.MaxAuthAttempts,
			AuthWindow:          cfg.Security.AuthWindow,
		})
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
