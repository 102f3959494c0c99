package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
	"github.com/weiawesome/wes-io-live/chat-core/internal/identity"
	"github.com/weiawesome/wes-io-live/chat-core/pkg/jwt"
)

type fakeMembers map[domain.MemberID]bool

func (f fakeMembers) Create(_ context.Context, id domain.MemberID) (*domain.Member, error) {
	f[id] = true
	return &domain.Member{ID: id}, nil
}

func (f fakeMembers) Exists(_ context.Context, id domain.MemberID) (bool, error) {
	return f[id], nil
}

func (f fakeMembers) CountExisting(_ context.Context, ids []domain.MemberID) (int, error) {
	n := 0
	for _, id := range ids {
		if f[id] {
			n++
		}
	}
	return n, nil
}

func newManager(t *testing.T) *jwt.Manager {
	t.Helper()
	m, err := jwt.NewManager(time.Minute, time.Hour, "chat-core-test")
	require.NoError(t, err)
	return m
}

func Test_Resolver_requires_some_credential(t *testing.T) {
	r := identity.NewResolver(newManager(t), fakeMembers{1: true}, true)

	_, err := r.Resolve(context.Background(), identity.Credentials{})
	require.ErrorIs(t, err, domain.ErrMissingCredential)
}

func Test_Resolver_rejects_non_numeric_member_header(t *testing.T) {
	r := identity.NewResolver(newManager(t), fakeMembers{1: true}, false)

	_, err := r.Resolve(context.Background(), identity.Credentials{MemberID: "abc"})
	require.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func Test_Resolver_requires_token_when_hardened(t *testing.T) {
	r := identity.NewResolver(newManager(t), fakeMembers{1: true}, true)

	_, err := r.Resolve(context.Background(), identity.Credentials{MemberID: "1"})
	require.ErrorIs(t, err, domain.ErrMissingCredential)
}

func Test_Resolver_accepts_matching_token(t *testing.T) {
	// Given
	m := newManager(t)
	pair, err := m.GenerateTokenPair(1)
	require.NoError(t, err)
	r := identity.NewResolver(m, fakeMembers{1: true}, true)

	// When
	id, err := r.Resolve(context.Background(), identity.Credentials{
		MemberID: "1",
		Token:    "Bearer " + pair.AccessToken,
	})

	// Then
	require.NoError(t, err)
	assert.Equal(t, domain.MemberID(1), id)
}

func Test_Resolver_rejects_token_for_another_member(t *testing.T) {
	// Given
	m := newManager(t)
	pair, err := m.GenerateTokenPair(2)
	require.NoError(t, err)
	r := identity.NewResolver(m, fakeMembers{1: true, 2: true}, true)

	// When
	_, err = r.Resolve(context.Background(), identity.Credentials{MemberID: "1", Token: pair.AccessToken})

	// Then
	require.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func Test_Resolver_rejects_refresh_token_and_garbage(t *testing.T) {
	m := newManager(t)
	pair, err := m.GenerateTokenPair(1)
	require.NoError(t, err)
	r := identity.NewResolver(m, fakeMembers{1: true}, true)

	for _, token := range []string{pair.RefreshToken, "not-a-token"} {
		_, err := r.Resolve(context.Background(), identity.Credentials{MemberID: "1", Token: token})
		require.ErrorIs(t, err, domain.ErrInvalidCredential)
	}
}

func Test_Resolver_takes_member_from_token_without_header(t *testing.T) {
	m := newManager(t)
	pair, err := m.GenerateTokenPair(7)
	require.NoError(t, err)
	r := identity.NewResolver(m, fakeMembers{7: true}, true)

	id, err := r.Resolve(context.Background(), identity.Credentials{Token: pair.AccessToken})
	require.NoError(t, err)
	assert.Equal(t, domain.MemberID(7), id)
}

func Test_Resolver_unknown_member(t *testing.T) {
	r := identity.NewResolver(newManager(t), fakeMembers{}, false)

	_, err := r.Resolve(context.Background(), identity.Credentials{MemberID: "5"})
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func Test_BearerToken(t *testing.T) {
	assert.Equal(t, "abc", identity.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", identity.BearerToken("bearer  abc "))
	assert.Equal(t, "abc", identity.BearerToken("abc"))
	assert.Equal(t, "", identity.BearerToken(""))
}
