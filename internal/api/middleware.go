package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/identity"
	"github.com/bullion/compliance-service/internal/pkg/logger"
)

// ActorMiddleware resolves the bearer token once per request and stores the
// actor on the request context for the handlers.
func ActorMiddleware(resolver identity.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, found := strings.CutPrefix(header, "Bearer ")
			if !found || strings.TrimSpace(token) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			ctx := c.Request().Context()
			actor, err := resolver.Resolve(ctx, strings.TrimSpace(token))
			if err != nil {
				return err
			}

			ctx = identity.WithActor(ctx, actor)
			ctx = context.WithValue(ctx, logger.StaffIDKey, actor.StaffID.String())
			if requestID := c.Response().Header().Get(echo.HeaderXRequestID); requestID != "" {
				ctx = context.WithValue(ctx, logger.RequestIDKey, requestID)
			}
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// caseContext tags the request context with the case in the path so log
// lines written further down carry it.
func caseContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Param("id"); id != "" {
			ctx := context.WithValue(c.Request().Context(), logger.CaseKey, id)
			c.SetRequest(c.Request().WithContext(ctx))
		}
		return next(c)
	}
}

func actorFrom(c echo.Context) (domain.Actor, error) {
	actor, ok := identity.ActorFrom(c.Request().Context())
	if !ok {
		return domain.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "no actor on request")
	}
	return actor, nil
}
