package service

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/repository"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/jwt"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

type tokenServiceImpl struct {
	jwt     *jwt.Manager
	members repository.MemberRepository
}

func NewTokenService(manager *jwt.Manager, members repository.MemberRepository) TokenService {
	return &tokenServiceImpl{jwt: manager, members: members}
}

// Issue signs a token pair for a registered member.
func (s *tokenServiceImpl) Issue(ctx context.Context, memberID domain.MemberID) (*jwt.TokenPair, error) {
	exists, err := s.members.Exists(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrMemberNotFound
	}

	pair, err := s.jwt.GenerateTokenPair(int64(memberID))
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Int64(log.FieldMemberID, int64(memberID)).Msg("failed to generate tokens")
		return nil, err
	}
	return pair, nil
}

func (s *tokenServiceImpl) Refresh(ctx context.Context, refreshToken string) (*jwt.TokenPair, error) {
	pair, err := s.jwt.RefreshTokens(refreshToken)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) || errors.Is(err, jwt.ErrExpiredToken) {
			return nil, domain.ErrInvalidCredential
		}
		return nil, err
	}
	return pair, nil
}
