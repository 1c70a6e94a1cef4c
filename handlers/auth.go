package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
)

// TokenValidator turns a bearer token into the claims of the account behind it.
type TokenValidator interface {
    ValidateToken(tokenStr string) (*models.CustomClaims, error)
}

// JWTValidator checks HMAC-signed tokens issued by the account service.
type JWTValidator struct {
    secret []byte
}

func NewJWTValidator(secret string) *JWTValidator {
    return &JWTValidator{secret: []byte(secret)}
}

func (v *JWTValidator) ValidateToken(tokenStr string) (*models.CustomClaims, error) {
    if len(v.secret) == 0 {
        return nil, errors.New("JWT secret not set")
    }

    claims := &models.CustomClaims{}
    token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
        if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
        }
        return v.secret, nil
    })
    if err != nil {
        return nil, err
    }
    if !token.Valid {
        return nil, errors.New("invalid token")
    }
    if claims.ID <= 0 {
        return nil, errors.New("token carries no account id")
    }
    return claims, nil
}

// IssueToken signs a token for an account. The login flow lives elsewhere;
// this serves local tooling and tests.
func (v *JWTValidator) IssueToken(id int64, username string, ttl time.Duration) (string, error) {
    claims := models.CustomClaims{
        RegisteredClaims: jwt.RegisteredClaims{
            ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
            IssuedAt:  jwt.NewNumericDate(time.Now()),
        },
        ID:       id,
        Username: username,
    }
    return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
