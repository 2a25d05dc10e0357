/**
 * @description
 * Verification orchestrator. A single request moves through
 * Received, TokenValidated, SignatureValidated, ConfigResolved, BalanceEvaluated and
 * GrantApplied before it is Responded to. Every rejection jumps straight to Responded;
 * nothing is retried inside a request.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Salmandabbakuti/xenea-discord-bot/internal/balance"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/domain"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/store"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/token"
	"github.com/Salmandabbakuti/xenea-discord-bot/internal/walletsig"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrMissingFields          = errors.New("missing required fields")
	ErrTokenExpiredOrInvalid  = errors.New("token expired or invalid")
	ErrSignatureMismatch      = errors.New("signature does not match address")
	ErrCommunityNotConfigured = errors.New("community not configured")
	ErrInternalFailure        = errors.New("internal failure")
)

// Reason codes returned to clients and used as metric labels.
const (
	ReasonOK                     = "ok"
	ReasonMissingFields          = "missing_fields"
	ReasonTokenExpiredOrInvalid  = "token_expired_or_invalid"
	ReasonSignatureMismatch      = "signature_mismatch"
	ReasonCommunityNotConfigured = "community_not_configured"
	ReasonRateLimited            = "rate_limited"
	ReasonInternalFailure        = "internal_failure"
)

// DefaultTimeout bounds a whole verification when VerifierDeps.Timeout is unset.
const DefaultTimeout = 25 * time.Second

// RoutingKeyVerificationCompleted is the routing key of VerificationCompletedEvent.
const RoutingKeyVerificationCompleted = "verification.completed"

// State is a step of the verification state machine.
type State string

const (
	StateReceived           State = "received"
	StateTokenValidated     State = "token_validated"
	StateSignatureValidated State = "signature_validated"
	StateConfigResolved     State = "config_resolved"
	StateBalanceEvaluated   State = "balance_evaluated"
	StateGrantApplied       State = "grant_applied"
	StateResponded          State = "responded"
)

// TokenRedeemer validates authorization tokens.
type TokenRedeemer interface {
	Redeem(raw string) (*token.Grant, error)
}

// ConfigReader resolves a guild's config.
type ConfigReader interface {
	GetByGuildID(ctx context.Context, guildID string) (*domain.ServerConfig, error)
}

// BalanceReader reads a wallet's balance of an arbitrary token contract.
type BalanceReader interface {
	Lookup(ctx context.Context, tokenAddress, wallet common.Address) (balance.Balance, error)
}

// AlertSink delivers operational alerts without blocking the caller.
type AlertSink interface {
	Send(webhookURL, content string)
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error
}

// OutcomeObserver records terminal verification outcomes.
type OutcomeObserver interface {
	ObserveVerification(outcome string)
}

// Verifier drives a single verification request from proof to grant.
type Verifier struct {
	tokens    TokenRedeemer
	configs   ConfigReader
	reader    BalanceReader
	grants    *GrantApplier
	alerts    AlertSink
	publisher EventPublisher
	exchange  string
	observer  OutcomeObserver
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// VerifierDeps lists the collaborators of a Verifier.
type VerifierDeps struct {
	Tokens    TokenRedeemer
	Configs   ConfigReader
	Reader    BalanceReader
	Grants    *GrantApplier
	Alerts    AlertSink
	Publisher EventPublisher
	Exchange  string
	Observer  OutcomeObserver
	Logger    *slog.Logger
	// Timeout bounds a whole verification, independent of the caller's lifetime.
	Timeout   time.Duration
}

// NewVerifier creates a verifier.
func NewVerifier(deps VerifierDeps) *Verifier {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Verifier{
		tokens:    deps.Tokens,
		configs:   deps.Configs,
		reader:    deps.Reader,
		grants:    deps.Grants,
		alerts:    deps.Alerts,
		publisher: deps.Publisher,
		exchange:  deps.Exchange,
		observer:  deps.Observer,
		logger:    logger,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Verify processes a proof. Eligible and ineligible members both produce an outcome and a
// nil error; only rejections and unclassified failures return an error, always wrapping
// one of the package's sentinel errors. Once started, a verification runs to completion
// even if ctx is cancelled; only the verifier's own timeout bounds it.
func (v *Verifier) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerificationOutcome, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
	defer cancel()

	state := StateReceived
	logger := v.logger.With("request_id", uuid.NewString())

	outcome, err := v.run(ctx, req, logger, &state)

	reason := ReasonFor(err)
	v.observe(reason)
	logger.Info("verification responded", "last_state", string(state), "reason", reason)
	return outcome, err
}

func (v *Verifier) run(ctx context.Context, req domain.VerifyRequest, logger *slog.Logger, state *State) (*domain.VerificationOutcome, error) {
	if isBlank(req.Token) || isBlank(req.Address) || isBlank(req.Message) || isBlank(req.Signature) {
		return nil, ErrMissingFields
	}

	grant, err := v.tokens.Redeem(req.Token)
	if err != nil {
		logger.Debug("token rejected", "error", err)
		return nil, ErrTokenExpiredOrInvalid
	}
	*state = StateTokenValidated
	logger = logger.With("guild_id", grant.GuildID, "member_id", grant.MemberID)

	recovered, err := walletsig.Recover(req.Message, req.Signature)
	if err != nil {
		logger.Debug("signature could not be recovered", "error", err)
		return nil, ErrSignatureMismatch
	}
	if !walletsig.Matches(req.Address, recovered) {
		logger.Info("signature does not match claimed address", "claimed", req.Address, "recovered", recovered.Hex())
		return nil, ErrSignatureMismatch
	}
	*state = StateSignatureValidated

	cfg, err := v.configs.GetByGuildID(ctx, grant.GuildID)
	if err != nil {
		if errors.Is(err, store.ErrConfigNotFound) {
			return nil, ErrCommunityNotConfigured
		}
		logger.Error("failed to load server config", "error", err)
		return nil, fmt.Errorf("%w: load config: %v", ErrInternalFailure, err)
	}
	if grant.ConfigRef != "" && grant.ConfigRef != cfg.ID {
		logger.Info("server config changed since token issuance", "token_config_id", grant.ConfigRef, "config_id", cfg.ID)
	}
	*state = StateConfigResolved

	if !common.IsHexAddress(cfg.TokenAddress) {
		v.alert(cfg, fmt.Sprintf("Attention Required: Configured token address `%s` is not a valid address. Please update it with `/set-serverconfig`.", cfg.TokenAddress))
		logger.Error("stored token address is invalid", "token_address", cfg.TokenAddress)
		return nil, fmt.Errorf("%w: invalid token address", ErrInternalFailure)
	}

	bal, err := v.reader.Lookup(ctx, common.HexToAddress(cfg.TokenAddress), recovered)
	if err != nil {
		v.alert(cfg, fmt.Sprintf("Attention Required: Internal Server Error while verifying user <@%s>: %v", grant.MemberID, err))
		logger.Error("balance lookup failed", "token_address", cfg.TokenAddress, "error", err)
		return nil, fmt.Errorf("%w: balance lookup: %v", ErrInternalFailure, err)
	}
	eligible := balance.Evaluate(bal, cfg.MinimumBalance)
	*state = StateBalanceEvaluated
	logger.Info("balance evaluated", "kind", string(bal.Kind()), "balance", bal.String(), "minimum_balance", cfg.MinimumBalance, "eligible", eligible)

	result, err := v.grants.Apply(ctx, cfg, grant.MemberID, recovered.Hex(), eligible)
	if err != nil {
		v.alert(cfg, fmt.Sprintf("Attention Required: Failed to apply verification outcome for <@%s>: %v", grant.MemberID, err))
		logger.Error("grant step failed", "error", err)
	}
	*state = StateGrantApplied

	outcome := &domain.VerificationOutcome{
		GuildID:           grant.GuildID,
		MemberID:          grant.MemberID,
		WalletAddress:     recovered.Hex(),
		BalanceKind:       string(bal.Kind()),
		NormalizedBalance: bal.String(),
		Eligible:          eligible,
		RoleGranted:       result.RoleGranted,
	}
	v.publish(ctx, cfg, outcome, logger)
	return outcome, nil
}

// ReasonFor maps an error returned by Verify to its reason code.
func ReasonFor(err error) string {
	switch {
	case err == nil:
		return ReasonOK
	case errors.Is(err, ErrMissingFields):
		return ReasonMissingFields
	case errors.Is(err, ErrTokenExpiredOrInvalid):
		return ReasonTokenExpiredOrInvalid
	case errors.Is(err, ErrSignatureMismatch):
		return ReasonSignatureMismatch
	case errors.Is(err, ErrCommunityNotConfigured):
		return ReasonCommunityNotConfigured
	default:
		return ReasonInternalFailure
	}
}

func (v *Verifier) publish(ctx context.Context, cfg *domain.ServerConfig, outcome *domain.VerificationOutcome, logger *slog.Logger) {
	if v.publisher == nil || v.exchange == "" {
		return
	}
	event := domain.VerificationCompletedEvent{
		EventID:           uuid.NewString(),
		GuildID:           outcome.GuildID,
		MemberID:          outcome.MemberID,
		WalletAddress:     outcome.WalletAddress,
		TokenAddress:      cfg.TokenAddress,
		BalanceKind:       outcome.BalanceKind,
		NormalizedBalance: outcome.NormalizedBalance,
		Eligible:          outcome.Eligible,
		RoleGranted:       outcome.RoleGranted,
		OccurredAt:        v.now().UTC(),
	}
	if err := v.publisher.Publish(ctx, v.exchange, RoutingKeyVerificationCompleted, event.EventID, event); err != nil {
		logger.Warn("failed to publish verification event", "error", err)
	}
}

func (v *Verifier) alert(cfg *domain.ServerConfig, content string) {
	if v.alerts == nil || !cfg.HasWebhook() {
		return
	}
	v.alerts.Send(cfg.WebhookURL, content)
}

func (v *Verifier) observe(reason string) {
	if v.observer != nil {
		v.observer.ObserveVerification(reason)
	}
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
