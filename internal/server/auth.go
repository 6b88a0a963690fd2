package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/tartampluch/famcal/internal/config"
)

// Claims are issued by the account service; only role is checked here.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func extractBearer(c echo.Context) (string, error) {
	h := c.Request().Header.Get(config.HeaderAuthz)
	if h == "" {
		return "", apiError(http.StatusUnauthorized, config.CodeMissingAuth)
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], config.AuthScheme) || parts[1] == "" {
		return "", apiError(http.StatusUnauthorized, config.CodeInvalidAuth)
	}
	return parts[1], nil
}

// requireOperator verifies an HS256 bearer token and requires the operator
// or admin role. Expiry is enforced by the parser.
func requireOperator(secret string) echo.MiddlewareFunc {
	allowed := map[string]bool{config.RoleOperator: true, config.RoleAdmin: true}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := extractBearer(c)
			if err != nil {
				return err
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, apiError(http.StatusUnauthorized, config.CodeInvalidMethod)
				}
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				slog.Debug(config.MsgAuthRejected,
					config.LogKeyComponent, config.CompAPI,
					config.LogKeyError, err,
				)
				return apiError(http.StatusUnauthorized, config.CodeInvalidToken)
			}

			if !allowed[strings.ToLower(claims.Role)] {
				slog.Info(config.MsgAuthRejected,
					config.LogKeyComponent, config.CompAPI,
					config.LogKeySubject, claims.Subject,
					config.LogKeyRole, claims.Role,
				)
				return apiError(http.StatusForbidden, config.CodeForbidden)
			}

			c.Set(config.ContextKeyClaims, claims)
			return next(c)
		}
	}
}
