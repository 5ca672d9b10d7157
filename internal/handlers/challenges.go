package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type createChallengeRequest struct {
	Sentence    string `json:"sentence" validate:"notblank,max=500"`
	PrizeAmount int    `json:"prizeAmount" validate:"gte=0"`
}

type purchaseRequest struct {
	WordIndex *int `json:"wordIndex" validate:"required,gte=0"`
}

type guessWordRequest struct {
	WordIndex *int   `json:"wordIndex" validate:"required,gte=0"`
	Guess     string `json:"guess" validate:"notblank,max=100"`
}

type guessSentenceRequest struct {
	Guess string `json:"guess" validate:"notblank,max=500"`
}

// bind decodes and validates the request body.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

func (h *Handler) ListChallenges(c echo.Context) error {
	views, err := h.game.ListChallenges(c.Request().Context(), callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) GetChallenge(c echo.Context) error {
	view, err := h.game.GetChallenge(c.Request().Context(), c.Param("id"), callerID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) CreateChallenge(c echo.Context) error {
	userID, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req createChallengeRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	challenge, err := h.game.CreateChallenge(ctx, userID, req.Sentence, req.PrizeAmount)
	if err != nil {
		return err
	}
	view, err := h.game.GetChallenge(ctx, challenge.ID, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, view)
}

func (h *Handler) GenerateImage(c echo.Context) error {
	url, err := h.game.GenerateChallengeImage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"imageUrl": url})
}

func (h *Handler) PurchaseWord(c echo.Context) error {
	userID, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req purchaseRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.game.PurchaseWord(c.Request().Context(), c.Param("id"), userID, *req.WordIndex)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GuessWord(c echo.Context) error {
	userID, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req guessWordRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.game.GuessWord(c.Request().Context(), c.Param("id"), userID, *req.WordIndex, req.Guess)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GuessSentence(c echo.Context) error {
	userID, err := requireCaller(c)
	if err != nil {
		return err
	}
	var req guessSentenceRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	result, err := h.game.GuessSentence(c.Request().Context(), c.Param("id"), userID, req.Guess)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
