package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/etlabplus/internal/errors"
	"github.com/hrygo/etlabplus/server/service/academic"
)

// AskRequest is a question for the AI proxy. An empty query asks for a
// summary of the dataset named by Type.
type AskRequest struct {
	Query string `json:"query"`
	Type  string `json:"type"`
}

// AskAI forwards a question with the matching dataset.
// POST /api/v1/ai/query
func (s *APIV1Service) AskAI(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperrors.InvalidArgument("invalid query request"))
	}
	answer, err := s.Academic.Ask(c.Request().Context(), req.Query, req.Type)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, answer)
}

// GetChatHistory returns the saved AI conversation.
// GET /api/v1/ai/history
func (s *APIV1Service) GetChatHistory(c echo.Context) error {
	history := s.Academic.ChatHistory(c.Request().Context())
	if history == nil {
		history = []academic.ChatMessage{}
	}
	return c.JSON(http.StatusOK, history)
}

// ThemeRequest sets the theme mode.
type ThemeRequest struct {
	Mode string `json:"mode"`
}

// GetTheme returns the saved theme.
// GET /api/v1/theme
func (s *APIV1Service) GetTheme(c echo.Context) error {
	return c.JSON(http.StatusOK, ThemeRequest{Mode: s.Academic.Theme(c.Request().Context())})
}

// SetTheme saves the theme.
// PUT /api/v1/theme
func (s *APIV1Service) SetTheme(c echo.Context) error {
	var req ThemeRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, apperrors.InvalidArgument("invalid theme request"))
	}
	if err := s.Academic.SetTheme(c.Request().Context(), req.Mode); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, req)
}
