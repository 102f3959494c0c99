package repository_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/repository"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", name),
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func seedMembers(t *testing.T, repo *repository.GormMemberRepository, ids ...domain.MemberID) {
	t.Helper()
	for _, id := range ids {
		_, err := repo.Create(context.Background(), id)
		require.NoError(t, err)
	}
}

func createRoom(t *testing.T, repo *repository.GormRoomRepository, now time.Time, ids ...domain.MemberID) *domain.Room {
	t.Helper()
	sorted, err := domain.NormalizeMembers(ids)
	require.NoError(t, err)
	room, err := repo.CreateWithMembers(context.Background(), domain.MemberKey(sorted), sorted, now)
	require.NoError(t, err)
	return room
}

func Test_MemberRepository_rejects_duplicate_registration(t *testing.T) {
	// Given
	ctx := context.Background()
	members := repository.NewGormMemberRepository(newTestDB(t))
	seedMembers(t, members, 1)

	// When
	_, err := members.Create(ctx, 1)

	// Then
	require.ErrorIs(t, err, domain.ErrMemberExists)
	n, err := members.CountExisting(ctx, []domain.MemberID{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func Test_RoomRepository_creates_room_with_one_membership_per_member(t *testing.T) {
	// Given
	db := newTestDB(t)
	ctx := context.Background()
	members := repository.NewGormMemberRepository(db)
	rooms := repository.NewGormRoomRepository(db)
	seedMembers(t, members, 1, 2, 3)
	now := time.Now().UTC()

	// When
	group := createRoom(t, rooms, now, 3, 1, 2)
	pair := createRoom(t, rooms, now, 1, 2)

	// Then
	assert.Equal(t, domain.RoomKindGroup, group.Kind)
	assert.ElementsMatch(t, []domain.MemberID{1, 2, 3}, group.MemberIDs)
	assert.Equal(t, domain.RoomKindOneToOne, pair.Kind)
	assert.NotEqual(t, group.ID, pair.ID)

	ids, err := rooms.MemberIDs(ctx, pair.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.MemberID{1, 2}, ids)

	found, err := rooms.FindByMemberKey(ctx, domain.MemberKey([]domain.MemberID{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, group.ID, found.ID)
}

func Test_RoomRepository_rejects_unknown_members_without_writing(t *testing.T) {
	// Given
	db := newTestDB(t)
	ctx := context.Background()
	members := repository.NewGormMemberRepository(db)
	rooms := repository.NewGormRoomRepository(db)
	seedMembers(t, members, 1)
	set := []domain.MemberID{1, 99}

	// When
	_, err := rooms.CreateWithMembers(ctx, domain.MemberKey(set), set, time.Now().UTC())

	// Then
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
	var count int64
	require.NoError(t, db.Model(&domain.RoomModel{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&domain.MembershipModel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func Test_RoomRepository_second_create_for_same_set_reports_room_exists(t *testing.T) {
	// Given
	db := newTestDB(t)
	ctx := context.Background()
	members := repository.NewGormMemberRepository(db)
	rooms := repository.NewGormRoomRepository(db)
	seedMembers(t, members, 1, 2)
	first := createRoom(t, rooms, time.Now().UTC(), 1, 2)
	set := []domain.MemberID{1, 2}

	// When
	_, err := rooms.CreateWithMembers(ctx, domain.MemberKey(set), set, time.Now().UTC())

	// Then
	require.ErrorIs(t, err, domain.ErrRoomExists)
	list, err := rooms.ListByMember(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)
}

func Test_RoomRepository_concurrent_creates_leave_a_single_room(t *testing.T) {
	// Given
	db := newTestDB(t)
	ctx := context.Background()
	members := repository.NewGormMemberRepository(db)
	rooms := repository.NewGormRoomRepository(db)
	seedMembers(t, members, 1, 2, 3)
	set := []domain.MemberID{1, 2, 3}
	key := domain.MemberKey(set)

	// When
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = rooms.CreateWithMembers(ctx, key, set, time.Now().UTC())
		}(i)
	}
	wg.Wait()

	// Then
	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, domain.ErrRoomExists)
	}
	assert.Equal(t, 1, created)
	var count int64
	require.NoError(t, db.Model(&domain.MembershipModel{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func Test_RoomRepository_unknown_room(t *testing.T) {
	rooms := repository.NewGormRoomRepository(newTestDB(t))

	_, err := rooms.GetByID(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	_, err = rooms.MemberIDs(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrRoomNotFound)

	err = rooms.MarkLeft(context.Background(), 42, 1, time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrNotRoomMember)
}

func Test_MessageRepository_append_rejects_invalid_references(t *testing.T) {
	// Given
	db := newTestDB(t)
	ctx := context.Background()
	members := repository.NewGormMemberRepository(db)
	rooms := repository.NewGormRoomRepository(db)
	messages := repository.NewGormMessageRepository(db)
	seedMembers(t, members, 1, 2)
	room := createRoom(t, rooms, time.Now().UTC(), 1, 2)

	// When
	errRoom := messages.Append(ctx, &domain.Message{RoomID: 999, SenderID: 1, Body: "hi", Type: domain.MessageTypeText})
	errSender := messages.Append(ctx, &domain.Message{RoomID: room.ID, SenderID: 77, Body: "hi", Type: domain.MessageTypeText})

	// Then
	require.ErrorIs(t, errRoom, domain.ErrRoomNotFound)
	require.ErrorIs(t, errSender, domain.ErrMemberNotFound)
	_, err := messages.LastByRoom(ctx, room.ID)
	require.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func Test_MessageRepository_lists_history_in_send_order(t *testing.T) {
	// Given
	db := newTestDB(t)
	ctx := context.Background()
	members := repository.NewGormMemberRepository(db)
	rooms := repository.NewGormRoomRepository(db)
	messages := repository.NewGormMessageRepository(db)
	seedMembers(t, members, 1, 2)
	base := time.Now().UTC().Add(-time.Hour)
	room := createRoom(t, rooms, base, 1, 2)

	for i, body := range []string{"first", "second", "third"} {
		msg := &domain.Message{
			RoomID:   room.ID,
			SenderID: domain.MemberID(i%2 + 1),
			Body:     body,
			Type:     domain.MessageTypeText,
			SentAt:   base.Add(time.Duration(i+1) * time.Minute),
		}
		require.NoError(t, messages.Append(ctx, msg))
		assert.NotZero(t, msg.ID)
	}

	// When
	history, err := messages.ListByRoom(ctx, room.ID)
	require.NoError(t, err)
	last, lastErr := messages.LastByRoom(ctx, room.ID)

	// Then
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Body)
	assert.Equal(t, "third", history[2].Body)
	require.NoError(t, lastErr)
	assert.Equal(t, "third", last.Body)
}

func Test_MessageRepository_unread_follows_read_marker(t *testing.T) {
	// Given
	db := newTestDB(t)
	ctx := context.Background()
	members := repository.NewGormMemberRepository(db)
	rooms := repository.NewGormRoomRepository(db)
	messages := repository.NewGormMessageRepository(db)
	seedMembers(t, members, 1, 2)
	base := time.Now().UTC().Add(-time.Hour)
	room := createRoom(t, rooms, base, 1, 2)

	send := func(sender domain.MemberID, body string, at time.Time) {
		require.NoError(t, messages.Append(ctx, &domain.Message{
			RoomID: room.ID, SenderID: sender, Body: body, Type: domain.MessageTypeText, SentAt: at,
		}))
	}
	send(2, "from two", base.Add(time.Minute))
	send(1, "from one", base.Add(2*time.Minute))

	// When
	unread, err := messages.UnreadByMember(ctx, 1)
	require.NoError(t, err)
	has, hasErr := messages.HasUnread(ctx, room.ID, 1)

	// Then: own messages never count
	require.NoError(t, hasErr)
	require.Len(t, unread, 1)
	assert.Equal(t, "from two", unread[0].Body)
	assert.True(t, has)

	// When the member leaves the room after reading
	require.NoError(t, rooms.MarkLeft(ctx, room.ID, 1, base.Add(3*time.Minute)))

	// Then
	unread, err = messages.UnreadByMember(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, unread)
	has, err = messages.HasUnread(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.False(t, has)

	// And a newer message is unread again
	send(2, "later", base.Add(4*time.Minute))
	has, err = messages.HasUnread(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.True(t, has)
}
