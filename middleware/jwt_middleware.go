package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/mapleleafu/pongarena/pongarena-backend/models"
	"github.com/mapleleafu/pongarena/pongarena-backend/pkg/responses"
	"github.com/mapleleafu/pongarena/pongarena-backend/utils"
)

type contextKey string

const authInfoKey contextKey = "authInfo"

type TokenValidator interface {
    ValidateToken(tokenStr string) (*models.CustomClaims, error)
}

func JWTValidationMiddleware(v TokenValidator) mux.MiddlewareFunc {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            tokenStr := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
            if tokenStr == "" {
                utils.HandleError(w, responses.UnauthorizedError{Msg: "Missing bearer token."})
                return
            }

            claims, err := v.ValidateToken(tokenStr)
            if err != nil {
                utils.HandleError(w, responses.UnauthorizedError{Msg: "Your token is invalid or expired. Please log in again."})
                return
            }

            ctx := context.WithValue(r.Context(), authInfoKey, claims)
            next.ServeHTTP(w, r.WithContext(ctx))
        })
    }
}

// AuthInfo returns the claims stored by JWTValidationMiddleware.
func AuthInfo(ctx context.Context) (*models.CustomClaims, bool) {
    claims, ok := ctx.Value(authInfoKey).(*models.CustomClaims)
    return claims, ok
}
