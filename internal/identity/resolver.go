package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/repository"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/jwt"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

const bearerPrefix = "bearer "

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	ValidateAccessToken(token string) (*jwt.Claims, error)
}

// Credentials are the raw values presented by a client, either as CONNECT
// headers or as HTTP headers.
type Credentials struct {
	MemberID string
	Token    string
}

// Resolver turns presented credentials into a verified member id.
type Resolver struct {
	tokens       TokenVerifier
	members      repository.MemberRepository
	requireToken bool
}

// NewResolver creates a resolver. With requireToken false a bare member id
// is trusted, which is only meant for local development.
func NewResolver(tokens TokenVerifier, members repository.MemberRepository, requireToken bool) *Resolver {
	return &Resolver{
		tokens:       tokens,
		members:      members,
		requireToken: requireToken,
	}
}

// Resolve verifies creds and returns the member they identify.
func (r *Resolver) Resolve(ctx context.Context, creds Credentials) (domain.MemberID, error) {
	header := strings.TrimSpace(creds.MemberID)
	token := BearerToken(creds.Token)
	if header == "" && token == "" {
		return 0, domain.ErrMissingCredential
	}

	var id domain.MemberID
	if header != "" {
		parsed, err := domain.ParseMemberID(header)
		if err != nil {
			return 0, err
		}
		id = parsed
	}

	if token == "" && r.requireToken {
		return 0, domain.ErrMissingCredential
	}

	if token != "" {
		if r.tokens == nil {
			return 0, domain.ErrInvalidCredential
		}
		claims, err := r.tokens.ValidateAccessToken(token)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
		}
		subject := domain.MemberID(claims.MemberID)
		if id != 0 && subject != id {
			l := log.Ctx(ctx)
			l.Warn().
				Int64(log.FieldMemberID, int64(id)).
				Int64("token_member_id", int64(subject)).
				Msg("token subject does not match presented member id")
			return 0, domain.ErrInvalidCredential
		}
		id = subject
	}

	exists, err := r.members.Exists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, domain.ErrMemberNotFound
	}
	return id, nil
}

// Authenticate adapts Resolve to the HTTP middleware.
func (r *Resolver) Authenticate(ctx context.Context, memberHeader, authorization string) (int64, error) {
	id, err := r.Resolve(ctx, Credentials{MemberID: memberHeader, Token: authorization})
	return int64(id), err
}

// BearerToken strips an optional "Bearer " scheme from an authorization value.
func BearerToken(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(v[len(bearerPrefix):])
	}
	return v
}
