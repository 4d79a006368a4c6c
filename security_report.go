package zuauth

import "github.com/MrEthical07/zuauth/internal/security"

// SecurityReport is the effective security posture of an Engine.
type SecurityReport = security.Report

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	input := security.ReportInput{
		ProductionMode:       e.config.Security.ProductionMode,
		SessionMode:          string(e.config.Session.Mode),
		SessionTTL:           e.config.Session.TTL,
		Disclosure:           e.config.Auth.Disclosure.String(),
		SupportedEvents:      e.config.Auth.SupportedEvents,
		ReplayInMemory:       e.config.Replay.InMemory,
		ReplayRetention:      e.config.Replay.Retention,
		RateLimiterAvailable: e.rateLimiter != nil,
		EnableNonceThrottle:  e.config.Security.EnableNonceThrottle,
		MaxNonceRequests:     e.config.Security.MaxNonceRequests,
		EnableAuthThrottle:   e.config.Security.EnableAuthThrottle,
		MaxAuthAttempts:      e.config.Security.MaxAuthAttempts,
		AuditEnabled:         e.config.Audit.Enabled,
		Warnings:             e.config.Lint().Codes(),
	}
	if e.verifier != nil {
		input.PCDTypes = e.verifier.Types()
		if key, ok := e.verifier.TrustedSigner(); ok {
			signer := key.Hex()
			input.TrustedSigner = &signer
		}
	}
	return security.BuildReport(input)
}
