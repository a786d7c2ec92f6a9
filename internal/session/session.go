// Package session issues and resolves the opaque tokens that carry room
// identity between the lobby flow and every room-scoped operation. A token is
// created when a user joins a room and revoked when they leave; revoked or
// tampered tokens never resolve.
package session

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

var (
	ErrInvalidSession = errors.New("invalid session token")
	ErrSessionRevoked = errors.New("session revoked")
)

// Claims carries the four identity fields the chat view needs
type Claims struct {
	RoomID   int64  `json:"room_id"`
	UserID   int64  `json:"user_id"`
	RoomName string `json:"room_name"`
	RoomCode string `json:"room_code"`
	jwt.RegisteredClaims
}

// Manager signs session tokens and tracks which of them are still active
type Manager struct {
	secret []byte
	ttl    time.Duration

	mu     sync.Mutex
	active map[string]struct{}
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		active: make(map[string]struct{}),
	}
}

// Issue creates an active session for the given room identity and returns the signed token
func (m *Manager) Issue(roomID, userID int64, roomName, roomCode string) (string, error) {
	now := time.Now()
	claims := Claims{
		RoomID:   roomID,
		UserID:   userID,
		RoomName: roomName,
		RoomCode: roomCode,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.active[claims.ID] = struct{}{}
	m.mu.Unlock()

	return signed, nil
}

// Resolve validates the token signature and expiry and checks the session has not been revoked
func (m *Manager) Resolve(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidSession
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSession
	}

	m.mu.Lock()
	_, alive := m.active[claims.ID]
	m.mu.Unlock()
	if !alive {
		return nil, ErrSessionRevoked
	}

	return claims, nil
}

// Revoke removes the session from the active set; subsequent Resolve calls fail
func (m *Manager) Revoke(claims *Claims) {
	m.mu.Lock()
	delete(m.active, claims.ID)
	m.mu.Unlock()
}

// ActiveCount reports the number of sessions that have been issued and not yet revoked
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
