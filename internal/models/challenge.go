package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ChallengeState string

const (
	ChallengeIssued   ChallengeState = "issued"
	ChallengeConsumed ChallengeState = "consumed"
	ChallengeExpired  ChallengeState = "expired"
)

// Challenge é um nonce de login de uso único ligado a uma identidade
type Challenge struct {
	ID         uuid.UUID  `json:"challengeId"`
	Identity   Identity   `json:"identity"`
	Nonce      string     `json:"-"`
	Message    string     `json:"challenge"`
	IssuedAt   time.Time  `json:"issuedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	ConsumedAt *time.Time `json:"-"`
}

// State depende do relógio: consumido continua consumido, não consumido
// expira em ExpiresAt.
func (c *Challenge) State(now time.Time) ChallengeState {
	if c.ConsumedAt != nil {
		return ChallengeConsumed
	}
	if !now.Before(c.ExpiresAt) {
		return ChallengeExpired
	}
	return ChallengeIssued
}

// ChallengeMessage é o texto exato que a carteira assina
func ChallengeMessage(identity Identity, nonce string, expiresAt time.Time) string {
	return fmt.Sprintf("zeroep login\nidentity: %s\nnonce: %s\nexpires: %s",
		identity, nonce, expiresAt.UTC().Format(time.RFC3339))
}
