/**
 * @description
 * Request, outcome and event models for wallet verification.
 */
package domain

import "time"

// VerifyRequest is the body accepted by POST /verify.
type VerifyRequest struct {
	Token     string `json:"token"`
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// VerificationOutcome is what the orchestrator hands back after a proof was fully processed.
type VerificationOutcome struct {
	GuildID           string
	MemberID          string
	WalletAddress     string
	BalanceKind       string
	NormalizedBalance string
	Eligible          bool
	RoleGranted       bool
}

// VerificationCompletedEvent is published for downstream consumers once a proof was processed.
type VerificationCompletedEvent struct {
	EventID           string    `json:"event_id"`
	GuildID           string    `json:"guild_id"`
	MemberID          string    `json:"member_id"`
	WalletAddress     string    `json:"wallet_address"`
	TokenAddress      string    `json:"token_address"`
	BalanceKind       string    `json:"balance_kind"`
	NormalizedBalance string    `json:"normalized_balance"`
	Eligible          bool      `json:"eligible"`
	RoleGranted       bool      `json:"role_granted"`
	OccurredAt        time.Time `json:"occurred_at"`
}
