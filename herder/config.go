package herder

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mezonai/herder/ballot"
	"github.com/mezonai/herder/config"
	"github.com/mezonai/herder/types"
)

// ConfigFromHerderConfig adapts a loaded config.HerderConfig plus a
// validation key into the Config New expects: it resolves the local
// quorum set's base58 node IDs and derives SelfNodeID from priv (nil
// priv means watcher mode, with SelfNodeID left as the zero value).
func ConfigFromHerderConfig(cfg *config.HerderConfig, priv ed25519.PrivateKey) (Config, error) {
	validators := make([]types.NodeID, 0, len(cfg.QuorumSet.Validators))
	for _, entry := range cfg.QuorumSet.Validators {
		nodeID, err := types.NodeIDFromString(entry.NodeID)
		if err != nil {
			return Config{}, fmt.Errorf("quorum set validator %q: %w", entry.NodeID, err)
		}
		validators = append(validators, nodeID)
	}

	var selfNodeID types.NodeID
	if priv != nil {
		selfNodeID = types.NodeIDFromPublicKey(priv.Public().(ed25519.PublicKey))
	}

	return Config{
		SelfNodeID: selfNodeID,
		SecretKey:  priv,
		LocalQuorumSet: ballot.QuorumSet{
			Threshold:  cfg.QuorumSet.Threshold,
			Validators: validators,
		},
		DesiredBaseFee:              cfg.DesiredBaseFee,
		StartNewNetwork:             cfg.StartNewNetwork,
		LedgerValidityBracket:       cfg.LedgerValidityBracket,
		NodeExpirationSeconds:       cfg.NodeExpirationSeconds,
		ExpLedgerTimespanSeconds:    cfg.ExpLedgerTimespanSeconds,
		MaxTimeSlipSeconds:          cfg.MaxTimeSlipSeconds,
		MaxFBATimeoutSeconds:        cfg.MaxFBATimeoutSeconds,
		LedgersToWaitToParticipate:  cfg.LedgersToWaitToParticipate,
	}, nil
}
