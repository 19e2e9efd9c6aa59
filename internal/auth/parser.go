package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nurpe/agro-contracts/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims accepts either the standard subject or the legacy "_id" claim as the user id.
type Claims struct {
	UserID string `json:"_id,omitempty"`
	jwt.RegisteredClaims
}

type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

func (p *Parser) Parse(token string) (model.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.Principal{}, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	raw := claims.Subject
	if raw == "" {
		raw = claims.UserID
	}
	userID, err := uuid.Parse(raw)
	if err != nil || userID == uuid.Nil {
		return model.Principal{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return model.Principal{UserID: userID}, nil
}
