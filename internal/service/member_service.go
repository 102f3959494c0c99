package service

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-live/chat-core/internal/audit"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/registry"
	"github.com/weiawesome/wes-io-live/chat-core/internal/repository"
)

type memberServiceImpl struct {
	members  repository.MemberRepository
	registry registry.Registry
}

func NewMemberService(members repository.MemberRepository, reg registry.Registry) MemberService {
	return &memberServiceImpl{members: members, registry: reg}
}

func (s *memberServiceImpl) Register(ctx context.Context, id domain.MemberID) (*domain.Member, error) {
	member, err := s.members.Create(ctx, id)
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.ActionMemberCreated, id, "member registered")
	return member, nil
}

func (s *memberServiceImpl) OnlineStatus(ctx context.Context, id domain.MemberID) (*domain.OnlineStatus, error) {
	exists, err := s.members.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrMemberNotFound
	}

	status := &domain.OnlineStatus{MemberID: id}
	instance, err := s.registry.Lookup(ctx, id)
	switch {
	case err == nil:
		status.Online = true
		status.Instance = instance
	case errors.Is(err, registry.ErrNotOnline):
	default:
		return nil, err
	}
	return status, nil
}
