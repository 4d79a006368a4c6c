// Command zuauth-server serves the ticket login endpoints.
//
// Configuration comes from an optional YAML file (-config) and the
// environment. Environment variables win over the file.
//
//	SESSION_COOKIE_NAME      session cookie name
//	SESSION_PASSWORD         cookie password, at least 32 characters
//	SESSION_MODE             redis (default) or sealed
//	APP_ENV=production       secure cookies and production lint rules
//	REDIS_ADDR               redis address
//	ZUAUTH_LISTEN            listen address (default :8080)
//	ZUAUTH_SUPPORTED_EVENTS  comma separated event ids
//	ZUAUTH_SIGNER            trusted signer as "x,y" hex
//	ZUAUTH_VK_PATH           groth16 verifying key JSON
//	ZUAUTH_DISCLOSURE        anonymous or revealed-email
//
// With -dev the server runs against miniredis and a local test issuer, and
// mounts GET /dev/prove?nonce=... which returns a proof for a fresh ticket.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/zuauth"
	"github.com/MrEthical07/zuauth/api"
	"github.com/MrEthical07/zuauth/pcd/groth16"
	"github.com/MrEthical07/zuauth/pcd/zkticket"
	"github.com/MrEthical07/zuauth/pcd/zkticket/zktickettest"
	"github.com/MrEthical07/zuauth/session"
)

const devEventID = "5de90d09-22db-40ca-b3ae-d934573def8b"

type serverConfig struct {
	Listen    string
	RedisAddr string
	VKPath    string
	Engine    zuauth.Config
}

func readConfig(path string) (*serverConfig, error) {
	v := viper.New()
	v.SetDefault("listen", ":8080")
	v.SetDefault("session.mode", "redis")
	v.SetDefault("session.cookie_name", "zuauth_session")
	v.SetDefault("session.ttl", "336h")
	v.SetDefault("auth.disclosure", "anonymous")
	v.SetDefault("replay.retention", "0s")
	v.SetDefault("audit.enabled", true)
	v.SetDefault("metrics.enabled", true)

	binds := map[string]string{
		"listen":                     "ZUAUTH_LISTEN",
		"redis_addr":                 "REDIS_ADDR",
		"app_env":                    "APP_ENV",
		"vk_path":                    "ZUAUTH_VK_PATH",
		"session.mode":               "SESSION_MODE",
		"session.cookie_name":        "SESSION_COOKIE_NAME",
		"session.password":           "SESSION_PASSWORD",
		"session.previous_passwords": "SESSION_PREVIOUS_PASSWORDS",
		"session.ttl":                "SESSION_TTL",
		"auth.disclosure":            "ZUAUTH_DISCLOSURE",
		"auth.supported_events":      "ZUAUTH_SUPPORTED_EVENTS",
		"auth.signer":                "ZUAUTH_SIGNER",
		"replay.retention":           "ZUAUTH_REPLAY_RETENTION",
	}
	for key, env := range binds {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	disclosure, err := zuauth.ParseDisclosurePolicy(v.GetString("auth.disclosure"))
	if err != nil {
		return nil, err
	}
	cfg := zuauth.AnonymousConfig()
	cfg.Auth.Disclosure = disclosure
	cfg.Auth.SupportedEvents = stringList(v.Get("auth.supported_events"))
	if signer := stringList(v.Get("auth.signer")); len(signer) > 0 {
		if len(signer) != 2 {
			return nil, errors.New("signer must be two hex coordinates")
		}
		cfg.Auth.RequireTrustedSigner = true
		cfg.Auth.TrustedSigner = [2]string{signer[0], signer[1]}
	}
	cfg.Session.Mode = session.Mode(v.GetString("session.mode"))
	cfg.Session.CookieName = v.GetString("session.cookie_name")
	cfg.Session.Password = v.GetString("session.password")
	cfg.Session.PreviousPasswords = stringList(v.Get("session.previous_passwords"))
	cfg.Session.TTL = v.GetDuration("session.ttl")
	cfg.Replay.Retention = v.GetDuration("replay.retention")
	cfg.Security.ProductionMode = v.GetString("app_env") == "production"
	cfg.Audit.Enabled = v.GetBool("audit.enabled")
	cfg.Metrics.Enabled = v.GetBool("metrics.enabled")
	cfg.Metrics.EnableLatencyHistograms = cfg.Metrics.Enabled

	return &serverConfig{
		Listen:    v.GetString("listen"),
		RedisAddr: v.GetString("redis_addr"),
		VKPath:    v.GetString("vk_path"),
		Engine:    cfg,
	}, nil
}

// stringList accepts a YAML sequence or a comma separated string.
func stringList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(val, ",")
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	case []string:
		parts = val
	default:
		return nil
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	var (
		configPath = flag.String("config", "", "optional YAML config file")
		dev        = flag.Bool("dev", false, "run with miniredis and a local test issuer")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(*configPath, *dev, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, dev bool, logger *slog.Logger) error {
	cfg, err := readConfig(configPath)
	if err != nil {
		return err
	}

	builder := zuauth.New().WithLogger(logger)
	var issuer *zktickettest.Issuer

	switch {
	case dev:
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("starting miniredis: %w", err)
		}
		defer mr.Close()
		cfg.RedisAddr = mr.Addr()

		issuer, err = zktickettest.NewIssuer()
		if err != nil {
			return err
		}
		builder.WithPCDPackage(issuer.Package())
		if cfg.Engine.Session.Password == "" {
			cfg.Engine.Session.Password = "dev-only-password-dev-only-password"
		}
		if len(cfg.Engine.Auth.SupportedEvents) == 0 {
			cfg.Engine.Auth.SupportedEvents = []string{devEventID}
		}
		cfg.Engine.Auth.RequireTrustedSigner = true
		cfg.Engine.Auth.TrustedSigner = issuer.Signer
		logger.Warn("dev mode: miniredis and test issuer", "redis", cfg.RedisAddr, "event", devEventID)
	case cfg.VKPath != "":
		data, err := os.ReadFile(cfg.VKPath)
		if err != nil {
			return fmt.Errorf("reading verifying key: %w", err)
		}
		vk, err := groth16.ParseVerifyingKeyJSON(data)
		if err != nil {
			return err
		}
		builder.WithVerifyingKey(vk)
	default:
		return errors.New("verifying key path required outside dev mode")
	}

	if cfg.RedisAddr == "" {
		return errors.New("redis address required")
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.RedisAddr}})
	defer rdb.Close()

	engine, err := builder.
		WithConfig(cfg.Engine).
		WithRedis(rdb).
		WithAuditSink(zuauth.NewSlogSink(logger.With("component", "audit"))).
		WithMetricsEnabled(cfg.Engine.Metrics.Enabled).
		WithLatencyHistograms(cfg.Engine.Metrics.EnableLatencyHistograms).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, w := range engine.SecurityReport().Warnings {
		logger.Warn("config lint", "code", w)
	}

	mux := http.NewServeMux()
	mux.Handle("/", api.New(engine, api.WithMetricsEndpoint()).Handler())
	if issuer != nil {
		mux.HandleFunc("GET /dev/prove", devProve(issuer))
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func devProve(issuer *zktickettest.Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nonce := r.URL.Query().Get("nonce")
		if nonce == "" {
			http.Error(w, "nonce required", http.StatusBadRequest)
			return
		}
		ticket := zktickettest.NewTicket(devEventID)
		serialized, err := issuer.Prove(zktickettest.TicketClaim(ticket, nonce, []string{devEventID}))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(zuauth.AuthInput{Type: zkticket.PCDType, PCD: serialized})
	}
}
