package security

import "time"

type Report struct {
	ProductionMode       bool
	SessionMode          string
	SessionTTL           time.Duration
	Disclosure           string
	PCDTypes             []string
	TrustedSignerEnabled bool
	TrustedSigner        [2]string
	SupportedEvents      int
	ReplayBackend        string
	ReplayRetention      time.Duration
	ReplayPermanent      bool
	RateLimitingActive   bool
	AuditEnabled         bool
	Warnings             []string
}

type ReportInput struct {
	ProductionMode       bool
	SessionMode          string
	SessionTTL           time.Duration
	Disclosure           string
	PCDTypes             []string
	TrustedSigner        *[2]string
	SupportedEvents      []string
	ReplayInMemory       bool
	ReplayRetention      time.Duration
	RateLimiterAvailable bool
	EnableNonceThrottle  bool
	MaxNonceRequests     int
	EnableAuthThrottle   bool
	MaxAuthAttempts      int
	AuditEnabled         bool
	Warnings             []string
}

func BuildReport(input ReportInput) Report {
	backend := "redis"
	if input.ReplayInMemory {
		backend = "memory"
	}

	nonceThrottle := input.EnableNonceThrottle && input.MaxNonceRequests > 0
	authThrottle := input.EnableAuthThrottle && input.MaxAuthAttempts > 0

	report := Report{
		ProductionMode:     input.ProductionMode,
		SessionMode:        input.SessionMode,
		SessionTTL:         input.SessionTTL,
		Disclosure:         input.Disclosure,
		PCDTypes:           append([]string(nil), input.PCDTypes...),
		SupportedEvents:    len(input.SupportedEvents),
		ReplayBackend:      backend,
		ReplayRetention:    input.ReplayRetention,
		ReplayPermanent:    input.ReplayRetention <= 0,
		RateLimitingActive: input.RateLimiterAvailable && (nonceThrottle || authThrottle),
		AuditEnabled:       input.AuditEnabled,
		Warnings:           append([]string(nil), input.Warnings...),
	}
	if input.TrustedSigner != nil {
		report.TrustedSignerEnabled = true
		report.TrustedSigner = *input.TrustedSigner
	}
	return report
}
