package handlers

import (
	"github.com/labstack/echo/v4"

	"phrasehunt/internal/gameerr"
)

// Register mounts the API. throttle guards the paid and guessing actions.
func (h *Handler) Register(e *echo.Echo, throttle echo.MiddlewareFunc) {
	e.GET("/health", h.HealthCheck)

	api := e.Group("/api")
	api.GET("/challenges", h.ListChallenges)
	api.POST("/challenges", h.CreateChallenge)
	api.GET("/challenges/:id", h.GetChallenge)
	api.POST("/challenges/:id/generate", h.GenerateImage)
	api.POST("/challenges/:id/purchase", h.PurchaseWord, throttle)
	api.POST("/challenges/:id/guess-word", h.GuessWord, throttle)
	api.POST("/challenges/:id/guess", h.GuessSentence, throttle)

	api.GET("/wallet/:userId", h.GetWallet, ownAccount)
	api.GET("/credits/:userId", h.GetRefillStatus, ownAccount)
	api.POST("/credits/:userId", h.ProcessRefill, ownAccount)
	api.GET("/users/:userId/purchases", h.ListPurchases, ownAccount)
}

// ownAccount rejects requests for any account but the caller's.
func ownAccount(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := requireCaller(c)
		if err != nil {
			return err
		}
		if c.Param("userId") != userID {
			return gameerr.New(gameerr.CodeForbidden, "You can only access your own account")
		}
		return next(c)
	}
}
