package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"phrasehunt/internal/gameerr"
	"phrasehunt/internal/models"
)

type Game interface {
	CreateChallenge(ctx context.Context, creatorID, sentence string, prizeAmount int) (*models.Challenge, error)
	GenerateChallengeImage(ctx context.Context, challengeID string) (string, error)
	PurchaseWord(ctx context.Context, challengeID, userID string, wordIndex int) (*models.PurchaseResult, error)
	GuessWord(ctx context.Context, challengeID, userID string, wordIndex int, guess string) (*models.GuessResult, error)
	GuessSentence(ctx context.Context, challengeID, userID, guess string) (*models.GuessResult, error)
	GetChallenge(ctx context.Context, challengeID, viewerID string) (*models.ChallengeView, error)
	ListChallenges(ctx context.Context, viewerID string) ([]*models.ChallengeView, error)
}

type Wallet interface {
	Balance(ctx context.Context, userID string) (int, error)
	RefillStatus(ctx context.Context, userID string) (*models.RefillStatus, error)
	ProcessRefill(ctx context.Context, userID string) (*models.RefillResult, error)
}

type PurchaseHistory interface {
	ListByUser(ctx context.Context, userID string) ([]models.UserPurchase, error)
}

// Pinger reports backend reachability for the health check.
type Pinger func(ctx context.Context) error

type Handler struct {
	game      Game
	wallet    Wallet
	purchases PurchaseHistory
	dbPing    Pinger
	redisPing Pinger
}

func NewHandler(game Game, wallet Wallet, purchases PurchaseHistory, dbPing, redisPing Pinger) *Handler {
	return &Handler{
		game:      game,
		wallet:    wallet,
		purchases: purchases,
		dbPing:    dbPing,
		redisPing: redisPing,
	}
}

func callerID(c echo.Context) string {
	return c.Request().Header.Get("X-User-Id")
}

func requireCaller(c echo.Context) (string, error) {
	userID := callerID(c)
	if userID == "" {
		return "", gameerr.Validation("X-User-Id header is required")
	}
	return userID, nil
}

func (h *Handler) HealthCheck(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := h.dbPing(ctx); err != nil {
		dbStatus = "unhealthy"
		status = "degraded"
	}
	redisStatus := "healthy"
	if err := h.redisPing(ctx); err != nil {
		redisStatus = "unhealthy"
		status = "degraded"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, models.HealthResponse{
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
		Database:  dbStatus,
		Redis:     redisStatus,
	})
}

func (h *Handler) GetWallet(c echo.Context) error {
	balance, err := h.wallet.Balance(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"wallet": balance})
}

func (h *Handler) GetRefillStatus(c echo.Context) error {
	status, err := h.wallet.RefillStatus(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (h *Handler) ProcessRefill(c echo.Context) error {
	result, err := h.wallet.ProcessRefill(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListPurchases(c echo.Context) error {
	purchases, err := h.purchases.ListByUser(c.Request().Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"purchases": purchases})
}
