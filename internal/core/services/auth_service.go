package services

import (
	"errors"
	"time"

	"vidcall/internal/core/domain"
	"vidcall/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the JWT claim set used to tag a peer identity on connect.
type Claims struct {
	PeerID domain.PeerID `json:"peer_id"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService returns the token validator used for identity tagging.
// Signaling messages themselves are not authenticated beyond this.
func NewAuthService(jwtSecret string, tokenTTL time.Duration) ports.AuthService {
	return &authService{
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

func (s *authService) GenerateToken(peerID domain.PeerID) (string, error) {
	claims := &Claims{
		PeerID: peerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(peerID),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*ports.TokenClaims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	peerID := claims.PeerID
	if peerID == "" {
		peerID = domain.PeerID(claims.Subject)
	}
	if peerID == "" {
		return nil, ErrInvalidToken
	}
	return &ports.TokenClaims{PeerID: peerID}, nil
}
