package zuauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/zuauth/session"
)

// LintSeverity ranks configuration warnings.
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("LintSeverity(%d)", uint8(s))
	}
}

// LintWarning is one finding of [Config.Lint].
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of findings.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	codes := make([]string, 0, len(r))
	for _, w := range r {
		codes = append(codes, w.Code)
	}
	return codes
}

// BySeverity returns the warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins every warning at or above min into one error, or returns
// nil when there is none.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	parts := make([]string, 0, len(hits))
	for _, w := range hits {
		parts = append(parts, fmt.Sprintf("[%s] %s: %s", w.Severity, w.Code, w.Message))
	}
	return fmt.Errorf("config lint: %s", strings.Join(parts, "; "))
}

// Lint reports settings that are valid but weaken the handshake. Unlike
// [Config.Validate] it never rejects a configuration.
func (c Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if !c.Auth.RequireTrustedSigner {
		add("signer_not_enforced", LintWarn, "tickets from any issuer key are accepted")
	}
	if len(c.Auth.SupportedEvents) == 0 {
		add("events_unrestricted", LintWarn, "tickets for any event are accepted")
	}
	if !c.Security.ProductionMode {
		add("production_mode_off", LintInfo, "session cookies are sent without the Secure flag")
	}
	if !c.Security.EnableNonceThrottle && !c.Security.EnableAuthThrottle {
		add("rate_limits_disabled", LintWarn, "nonce and authenticate requests are not throttled")
	}

	if c.Replay.InMemory {
		sev := LintWarn
		if c.Security.ProductionMode {
			sev = LintHigh
		}
		add("replay_in_memory", sev, "nullifiers are not shared between instances or restarts")
	}
	if c.Replay.Retention > 0 {
		if c.Replay.Retention < c.Session.TTL {
			add("replay_retention_short", LintHigh, "nullifiers expire before the sessions they logged in")
		} else {
			add("replay_retention_set", LintInfo, "nullifiers are forgotten after the retention window")
		}
	}

	if c.Session.TTL > 30*24*time.Hour {
		add("session_ttl_long", LintInfo, "sessions live longer than 30 days")
	}
	if c.Session.Mode == session.ModeSealed {
		add("sealed_logout_not_revocable", LintWarn, "a copied sealed cookie stays valid until it expires")
		add("sealed_nonce_not_superseded", LintWarn, "a kept earlier sealed cookie still carries its nonce after a new one is issued, so only the nullifier stops a second login")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "no audit trail of logins and rejections")
	}

	return ws
}
