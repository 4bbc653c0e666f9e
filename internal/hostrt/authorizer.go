package hostrt

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Decision is the outcome of a join-authorization check (§4.5 point 4).
type Decision int

const (
	Pending Decision = iota
	Approved
	Denied
)

// JoinMeta is the viewer metadata presented to the authorization
// collaborator: label, remote address, requested features, and whatever
// passcode the viewer supplied.
type JoinMeta struct {
	Label             string
	RemoteAddr        string
	RequestedFeatures []string
	Passcode          string
}

// Authorizer decides whether a joining viewer may proceed past the Status
// gate. Implementations may block (e.g. waiting on an operator prompt).
type Authorizer interface {
	Authorize(ctx context.Context, meta JoinMeta) (Decision, error)
}

// AllowAllAuthorizer approves every join immediately; useful for local
// testing and scriptable CI sessions. It is what `host` uses when neither
// --passcode nor --ask is given and auth_policy is not "ask".
type AllowAllAuthorizer struct{}

func (AllowAllAuthorizer) Authorize(context.Context, JoinMeta) (Decision, error) {
	return Approved, nil
}

// passcodeClaims is embedded in a join token minted by `beamterm host` and
// handed to a viewer out of band (e.g. printed in the bootstrap banner).
// `join --passcode <token>` presents it back; PasscodeAuthorizer verifies
// the signature and expiry rather than doing a plaintext string compare.
type passcodeClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
}

// PasscodeAuthorizer approves a join whose presented token is a validly
// signed, unexpired passcode for this session; anything else is denied.
// A nil secret means "no passcode required", auto-approving every join
// (equivalent to AllowAllAuthorizer but sharing this type's audit log hook).
type PasscodeAuthorizer struct {
	SessionID string
	Secret    []byte
	OnDecision func(JoinMeta, Decision)
}

func (a *PasscodeAuthorizer) MintToken(ttl time.Duration) (string, error) {
	claims := passcodeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		SessionID: a.SessionID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(a.Secret)
}

func (a *PasscodeAuthorizer) Authorize(ctx context.Context, meta JoinMeta) (Decision, error) {
	decision := a.authorize(meta)
	if a.OnDecision != nil {
		a.OnDecision(meta, decision)
	}
	return decision, nil
}

func (a *PasscodeAuthorizer) authorize(meta JoinMeta) Decision {
	if len(a.Secret) == 0 {
		return Approved
	}
	if meta.Passcode == "" {
		return Denied
	}
	tok, err := jwt.ParseWithClaims(meta.Passcode, &passcodeClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Method)
		}
		return a.Secret, nil
	})
	if err != nil || !tok.Valid {
		return Denied
	}
	claims, ok := tok.Claims.(*passcodeClaims)
	if !ok || claims.SessionID != a.SessionID {
		return Denied
	}
	return Approved
}

// PromptAuthorizer defers every decision to an operator-supplied callback,
// e.g. a CLI prompt printed to the host's own terminal.
type PromptAuthorizer struct {
	Prompt func(ctx context.Context, meta JoinMeta) (bool, error)
}

func (a *PromptAuthorizer) Authorize(ctx context.Context, meta JoinMeta) (Decision, error) {
	ok, err := a.Prompt(ctx, meta)
	if err != nil {
		return Denied, err
	}
	if ok {
		return Approved, nil
	}
	return Denied, nil
}
