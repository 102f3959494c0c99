package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Claims represents JWT claims. Subject carries the member id as a decimal string.
type Claims struct {
	jwt.RegisteredClaims
	MemberID int64  `json:"member_id"`
	Type     string `json:"type"` // "access" or "refresh"
}

// TokenPair is the result of issuing or refreshing tokens.
type TokenPair struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	AccessExpiresAt  int64  `json:"accessExpiresAt"`
	RefreshExpiresAt int64  `json:"refreshExpiresAt"`
}

// Manager handles JWT operations.
type Manager struct {
	privateKey      *rsa.PrivateKey
	publicKey       *rsa.PublicKey
	accessDuration  time.Duration
	refreshDuration time.Duration
	issuer          string
}

// NewManager creates a manager with a freshly generated RSA key pair.
// Tokens it signs are only verifiable by the same process.
func NewManager(accessDuration, refreshDuration time.Duration, issuer string) (*Manager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return newManager(privateKey, accessDuration, refreshDuration, issuer), nil
}

// NewManagerFromPEM creates a manager from a PEM-encoded RSA private key file,
// so that every instance behind a load balancer shares the signing key.
func NewManagerFromPEM(path string, accessDuration, refreshDuration time.Duration, issuer string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newManager(privateKey, accessDuration, refreshDuration, issuer), nil
}

func newManager(key *rsa.PrivateKey, accessDuration, refreshDuration time.Duration, issuer string) *Manager {
	return &Manager{
		privateKey:      key,
		publicKey:       &key.PublicKey,
		accessDuration:  accessDuration,
		refreshDuration: refreshDuration,
		issuer:          issuer,
	}
}

// GenerateTokenPair creates access and refresh tokens for a member.
func (m *Manager) GenerateTokenPair(memberID int64) (*TokenPair, error) {
	now := time.Now()

	accessExp := now.Add(m.accessDuration)
	accessToken, err := m.signToken(m.claims(memberID, TypeAccess, now, accessExp))
	if err != nil {
		return nil, err
	}

	refreshExp := now.Add(m.refreshDuration)
	refreshToken, err := m.signToken(m.claims(memberID, TypeRefresh, now, refreshExp))
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp.Unix(),
		RefreshExpiresAt: refreshExp.Unix(),
	}, nil
}

// ValidateToken validates a token and returns claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return m.publicKey, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateAccessToken is ValidateToken restricted to access tokens.
func (m *Manager) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims, err := m.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RefreshTokens creates new token pair from a valid refresh token.
func (m *Manager) RefreshTokens(refreshTokenString string) (*TokenPair, error) {
	claims, err := m.ValidateToken(refreshTokenString)
	if err != nil {
		return nil, err
	}

	if claims.Type != TypeRefresh {
		return nil, ErrInvalidToken
	}

	return m.GenerateTokenPair(claims.MemberID)
}

func (m *Manager) claims(memberID int64, typ string, now, exp time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   strconv.FormatInt(memberID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		MemberID: memberID,
		Type:     typ,
	}
}

func (m *Manager) signToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(m.privateKey)
}
