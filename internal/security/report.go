package security

import "time"

type Report struct {
	SigningAlgorithm        string
	AccessTTL               time.Duration
	CredentialTTL           time.Duration
	RotationEnabled         bool
	ReuseDetectionEnabled   bool
	LockoutActive           bool
	MaxLoginAttempts        int64
	LockDuration            time.Duration
	LockoutFailOpen         bool
	CaptchaActive           bool
	CaptchaThreshold        int64
	AbusePolicyCount        int
	BlockingPolicyCount     int
	AuditActive             bool
	SecurityEventsActive    bool
	MetricsActive           bool
	LatencyHistogramsActive bool
}

type ReportInput struct {
	SigningAlgorithm        string
	AccessTTL               time.Duration
	CredentialTTL           time.Duration
	LockoutEnabled          bool
	MaxLoginAttempts        int64
	LockDuration            time.Duration
	LockoutFailOpen         bool
	CaptchaEnabled          bool
	CaptchaThreshold        int64
	PolicyBlocks            []time.Duration
	AuditEnabled            bool
	SecuritySinkAttached    bool
	MetricsEnabled          bool
	LatencyHistogramsActive bool
}

func BuildReport(input ReportInput) Report {
	blocking := 0
	for _, block := range input.PolicyBlocks {
		if block > 0 {
			blocking++
		}
	}

	lockout := input.LockoutEnabled &&
		input.MaxLoginAttempts > 0 &&
		input.LockDuration > 0

	return Report{
		SigningAlgorithm:        input.SigningAlgorithm,
		AccessTTL:               input.AccessTTL,
		CredentialTTL:           input.CredentialTTL,
		RotationEnabled:         true,
		ReuseDetectionEnabled:   true,
		LockoutActive:           lockout,
		MaxLoginAttempts:        input.MaxLoginAttempts,
		LockDuration:            input.LockDuration,
		LockoutFailOpen:         input.LockoutFailOpen,
		CaptchaActive:           input.CaptchaEnabled && input.CaptchaThreshold > 0,
		CaptchaThreshold:        input.CaptchaThreshold,
		AbusePolicyCount:        len(input.PolicyBlocks),
		BlockingPolicyCount:     blocking,
		AuditActive:             input.AuditEnabled,
		SecurityEventsActive:    input.SecuritySinkAttached,
		MetricsActive:           input.MetricsEnabled,
		LatencyHistogramsActive: input.MetricsEnabled && input.LatencyHistogramsActive,
	}
}
