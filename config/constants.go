package config

import "time"

// Defaults mirror the "order of seconds/minutes" scale these knobs are tuned at.
const (
	DefaultLedgerValidityBracket       = 10
	DefaultNodeExpirationSeconds       = int64(24 * time.Hour / time.Second)
	DefaultExpLedgerTimespanSeconds    = int64(5)
	DefaultMaxTimeSlipSeconds          = int64(5)
	DefaultMaxFBATimeoutSeconds        = int64(30)
	DefaultLedgersToWaitToParticipate  = 3
)

// WithDefaults fills in zero-valued tuning fields so a partially specified
// herder.yml still produces a workable configuration.
func (c HerderConfig) WithDefaults() HerderConfig {
	if c.LedgerValidityBracket == 0 {
		c.LedgerValidityBracket = DefaultLedgerValidityBracket
	}
	if c.NodeExpirationSeconds == 0 {
		c.NodeExpirationSeconds = DefaultNodeExpirationSeconds
	}
	if c.ExpLedgerTimespanSeconds == 0 {
		c.ExpLedgerTimespanSeconds = DefaultExpLedgerTimespanSeconds
	}
	if c.MaxTimeSlipSeconds == 0 {
		c.MaxTimeSlipSeconds = DefaultMaxTimeSlipSeconds
	}
	if c.MaxFBATimeoutSeconds == 0 {
		c.MaxFBATimeoutSeconds = DefaultMaxFBATimeoutSeconds
	}
	if c.LedgersToWaitToParticipate == 0 {
		c.LedgersToWaitToParticipate = DefaultLedgersToWaitToParticipate
	}
	return c
}
