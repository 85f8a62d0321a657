package protocol

import (
	"errors"
	"time"
)

// LedgerConfig provides the deployment parameters of a Ledger.
type LedgerConfig struct {
	// DeploymentID is mixed into every state commitment so that commitments
	// from one deployment never validate in another.
	DeploymentID string `json:"deployment_id" yaml:"deployment_id"`

	// SubmissionCooldown is the minimum time between two submissions of the
	// same provider.
	SubmissionCooldown time.Duration `json:"submission_cooldown,string" yaml:"submission_cooldown"`

	// DecryptionCooldown is the minimum time between two decryption requests
	// of the same caller.
	DecryptionCooldown time.Duration `json:"decryption_cooldown,string" yaml:"decryption_cooldown"`
}

// Validate checks the configuration for obvious mistakes.
func (c *LedgerConfig) Validate() error {
	if c.DeploymentID == "" {
		return errors.New("deployment id must be set")
	}
	if c.SubmissionCooldown < 0 || c.DecryptionCooldown < 0 {
		return errors.New("cooldowns must not be negative")
	}
	return nil
}
