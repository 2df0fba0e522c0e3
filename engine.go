package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskforge/authcore/mfa"
	"github.com/taskforge/authcore/password"
	"github.com/taskforge/authcore/secret"
	"github.com/taskforge/authcore/token"
)

// Engine is the authentication core facade. Construct it through
// [Builder]; a built Engine is immutable and safe for concurrent use.
type Engine struct {
	config     Config
	store      AccountStore
	hasher     *password.Hasher
	cipher     *secret.Cipher
	tokens     *token.Service
	challenges *mfaChallengeStore
	validator  mfa.Validator
	audit      *auditDispatcher
	metrics    *Metrics
	now        func() time.Time
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.hasher == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	return nil
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// VerifyAccess verifies an access token and returns its claims. The
// check is stateless apart from the token cache: structure, signature,
// type, fingerprint, age, revocation, in that order.
func (e *Engine) VerifyAccess(ctx context.Context, rawToken, fingerprint string) (*AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	start := e.now()
	claims, err := e.tokens.Verify(ctx, rawToken, token.TypeAccess, fingerprint)
	if e.metrics != nil {
		e.metrics.Observe(MetricVerifyLatency, e.now().Sub(start))
	}
	if err != nil {
		e.metricInc(MetricTokenRejected)
		return nil, err
	}
	e.metricInc(MetricTokenVerified)
	return claims, nil
}

// RefreshTokens rotates a refresh token and issues a fresh access token
// alongside the new refresh token. The old refresh token's jti is
// revoked as part of the rotation; when revocation fails the whole
// rotation fails and the old token stays valid.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken, fingerprint string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	pair, err := e.tokens.Rotate(ctx, refreshToken, fingerprint)
	if err != nil {
		e.metricInc(MetricRotationFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricRotationSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, "", nil, nil)

	return pairResult(pair), nil
}

// Revoke registers a token on the negative list so it is rejected for
// the remainder of its lifetime.
func (e *Engine) Revoke(ctx context.Context, rawToken string, typ token.Type) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.tokens.Revoke(ctx, rawToken, typ); err != nil {
		return err
	}
	e.metricInc(MetricTokenRevoked)
	return nil
}

// issueTokenPair signs an access/refresh pair sharing one fingerprint.
func (e *Engine) issueTokenPair(ctx context.Context, id token.Identity) (*LoginResult, error) {
	pair, err := e.tokens.IssuePair(ctx, id)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricTokenIssued)
	return pairResult(pair), nil
}

func pairResult(pair *token.TokenPair) *LoginResult {
	return &LoginResult{
		AccessToken:      pair.Access.Token,
		RefreshToken:     pair.Refresh.Token,
		AccessExpiresIn:  pair.Access.ExpiresIn,
		RefreshExpiresIn: pair.Refresh.ExpiresIn,
		Fingerprint:      pair.Fingerprint,
	}
}

// loadAccount fetches by ID and normalizes store failures.
func (e *Engine) loadAccount(ctx context.Context, accountID string) (*UserAccount, error) {
	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return account, nil
}
