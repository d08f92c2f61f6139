package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/pressdesk/internal/curation"
	"github.com/hitoshi/pressdesk/internal/model"
)

// SuggesterInterface はホームコンテンツの掲載候補を生成する。
// curation.Suggester が満たす。
type SuggesterInterface interface {
	Suggest(ctx context.Context, feedURL, section string) ([]model.HomeContent, error)
}

// SuggestionHandler は掲載候補のHTTPハンドラー。
type SuggestionHandler struct {
	suggester SuggesterInterface
	logger    *slog.Logger
}

// NewSuggestionHandler はSuggestionHandlerを生成する。
func NewSuggestionHandler(suggester SuggesterInterface, logger *slog.Logger) *SuggestionHandler {
	return &SuggestionHandler{suggester: suggester, logger: logger}
}

type suggestionsResponse struct {
	FeedURL     string              `json:"feedUrl"`
	Suggestions []model.HomeContent `json:"suggestions"`
}

// Suggest はフィードから掲載候補を生成する。候補は保存しない。
// GET /api/home-contents/suggestions?feed_url=&section=
func (h *SuggestionHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	feedURL := strings.TrimSpace(r.URL.Query().Get("feed_url"))
	if feedURL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidFeedURLError("feed_url が指定されていません"))
		return
	}

	suggestions, err := h.suggester.Suggest(r.Context(), feedURL, r.URL.Query().Get("section"))
	if err != nil {
		if errors.Is(err, curation.ErrInvalidFeedURL) {
			handleServiceError(w, h.logger, errorTarget{label: "フィード"}, err)
			return
		}
		h.logger.Warn("掲載候補の取得に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewSuggestionFailedError(err.Error()))
		return
	}

	if suggestions == nil {
		suggestions = []model.HomeContent{}
	}
	writeJSON(w, http.StatusOK, suggestionsResponse{FeedURL: feedURL, Suggestions: suggestions})
}
