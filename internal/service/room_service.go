package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-live/chat-core/internal/audit"
	"github.com/weiawesome/wes-io-live/chat-core/internal/cache"
	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/metrics"
	"github.com/weiawesome/wes-io-live/chat-core/internal/repository"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

type roomServiceImpl struct {
	rooms    repository.RoomRepository
	members  repository.MemberRepository
	messages repository.MessageRepository
	cache    cache.RoomCache
	cacheTTL time.Duration
	sf       singleflight.Group
	now      func() time.Time
}

func NewRoomService(
	rooms repository.RoomRepository,
	members repository.MemberRepository,
	messages repository.MessageRepository,
	roomCache cache.RoomCache,
	cacheTTL time.Duration,
) RoomService {
	if roomCache == nil {
		roomCache = cache.NoopRoomCache{}
	}
	return &roomServiceImpl{
		rooms:    rooms,
		members:  members,
		messages: messages,
		cache:    roomCache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (s *roomServiceImpl) ResolveOrCreateRoom(ctx context.Context, viewer domain.MemberID, memberIDs []domain.MemberID) (*domain.RoomSummary, error) {
	sorted, err := domain.NormalizeMembers(memberIDs)
	if err != nil {
		return nil, err
	}
	key := domain.MemberKey(sorted)

	room, err := s.cachedRoom(ctx, key)
	if err != nil {
		room, err = s.sharedFindOrCreate(ctx, key, sorted)
		if err != nil {
			return nil, err
		}
	}

	return s.summarize(ctx, room, viewer)
}

// sharedFindOrCreate collapses identical concurrent requests into one
// lookup-or-create. The shared work outlives any single caller; each caller
// stops waiting when its own ctx ends.
func (s *roomServiceImpl) sharedFindOrCreate(ctx context.Context, key string, sorted []domain.MemberID) (*domain.Room, error) {
	flight := s.sf.DoChan(key, func() (interface{}, error) {
		return s.findOrCreate(context.WithoutCancel(ctx), key, sorted)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		room, ok := res.Val.(*domain.Room)
		if !ok {
			return nil, fmt.Errorf("unexpected result type from singleflight")
		}
		return room, nil
	}
}

// cachedRoom returns the room whose id is cached under key. Any miss or
// stale entry is reported as an error so the caller falls back to the store.
func (s *roomServiceImpl) cachedRoom(ctx context.Context, key string) (*domain.Room, error) {
	id, err := s.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			metrics.RoomCacheLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.RoomCacheLookups.WithLabelValues("error").Inc()
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("room cache get error")
		}
		return nil, err
	}
	room, err := s.rooms.GetByID(ctx, id)
	if err != nil {
		metrics.RoomCacheLookups.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.RoomCacheLookups.WithLabelValues("hit").Inc()
	return room, nil
}

func (s *roomServiceImpl) findOrCreate(ctx context.Context, key string, sorted []domain.MemberID) (*domain.Room, error) {
	room, err := s.rooms.FindByMemberKey(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRoomNotFound):
		room, err = s.create(ctx, key, sorted)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to find room: %w", err)
	}

	// Store in cache (async to avoid blocking response)
	roomID := room.ID
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.cache.Set(cacheCtx, key, roomID, s.cacheTTL); err != nil {
			l := log.L()
			l.Warn().Err(err).Msg("room cache set error")
		}
	}()

	return room, nil
}

func (s *roomServiceImpl) create(ctx context.Context, key string, sorted []domain.MemberID) (*domain.Room, error) {
	room, err := s.rooms.CreateWithMembers(ctx, key, sorted, s.now().UTC())
	if err == nil {
		metrics.RoomsCreated.WithLabelValues(string(room.Kind)).Inc()
		audit.LogWithDetail(ctx, audit.ActionRoomCreated, sorted[0], room.ID.String(), "room created")
		return room, nil
	}
	if !errors.Is(err, domain.ErrRoomExists) {
		return nil, err
	}

	// Another creator committed the same member set first
	metrics.RoomCreateConflicts.Inc()
	l := log.Ctx(ctx)
	l.Debug().Int("members", len(sorted)).Msg("room create conflict, re-reading winner")
	return s.rooms.FindByMemberKey(ctx, key)
}

func (s *roomServiceImpl) ListRoomsForMember(ctx context.Context, memberID domain.MemberID) ([]domain.RoomSummary, error) {
	exists, err := s.members.Exists(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrMemberNotFound
	}

	rooms, err := s.rooms.ListByMember(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	summaries := make([]domain.RoomSummary, 0, len(rooms))
	for i := range rooms {
		summary, err := s.summarize(ctx, &rooms[i], memberID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summary)
	}
	return summaries, nil
}

func (s *roomServiceImpl) summarize(ctx context.Context, room *domain.Room, viewer domain.MemberID) (*domain.RoomSummary, error) {
	summary := &domain.RoomSummary{
		RoomID:     room.ID,
		Kind:       room.Kind,
		MemberIDs:  room.MemberIDs,
		ReadStatus: domain.ReadStatusAllRead,
	}

	last, err := s.messages.LastByRoom(ctx, room.ID)
	switch {
	case err == nil:
		summary.LastMessage = last.Body
	case errors.Is(err, domain.ErrMessageNotFound):
		return summary, nil
	default:
		return nil, fmt.Errorf("failed to load last message: %w", err)
	}

	if viewer != 0 {
		unread, err := s.messages.HasUnread(ctx, room.ID, viewer)
		if err != nil {
			return nil, fmt.Errorf("failed to compute read status: %w", err)
		}
		if unread {
			summary.ReadStatus = domain.ReadStatusUnread
		}
	}
	return summary, nil
}
