package storyapiimpl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/skazkalab/fairytale-engine/internal/config"
	"github.com/skazkalab/fairytale-engine/internal/domain"
	"github.com/skazkalab/fairytale-engine/internal/storyapi"
	"github.com/skazkalab/fairytale-engine/pkg/errors"
	"github.com/skazkalab/fairytale-engine/pkg/logger"
	"go.uber.org/fx"
)

type StoryImpl struct {
	baseURL    string
	httpClient *http.Client
	tokens     storyapi.TokenSource
	logger     logger.Logger
}

type Opts struct {
	fx.In

	Config *config.Config
	Tokens storyapi.TokenSource
	Logger logger.Logger
}

func New(opts Opts) *StoryImpl {
	return &StoryImpl{
		baseURL:    strings.TrimRight(opts.Config.API.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Config.API.Timeout},
		tokens:     opts.Tokens,
		logger:     opts.Logger,
	}
}

var _ storyapi.Client = (*StoryImpl)(nil)

type fetchStoriesRequest struct {
	Themes        []string              `json:"themes"`
	ViewedStories []domain.HistoryEntry `json:"viewedStories"`
	UserID        string                `json:"userId"`
}

type fetchStoriesResponse struct {
	Data struct {
		Stories []domain.Story        `json:"stories"`
		History []domain.HistoryEntry `json:"history"`
	} `json:"data"`
}

func (c *StoryImpl) FetchStories(ctx context.Context, themes []string, viewed []domain.HistoryEntry, userID string) (*storyapi.FetchResult, error) {
	if viewed == nil {
		viewed = []domain.HistoryEntry{}
	}
	if themes == nil {
		themes = []string{}
	}

	c.logger.Info("Requesting story batch", "themes", themes, "viewed_count", len(viewed))

	var resp fetchStoriesResponse
	err := c.doJSON(ctx, http.MethodPost, "/story/load", fetchStoriesRequest{
		Themes:        themes,
		ViewedStories: viewed,
		UserID:        userID,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &storyapi.FetchResult{
		Stories: resp.Data.Stories,
		History: resp.Data.History,
	}, nil
}

func (c *StoryImpl) LoadStoryByID(ctx context.Context, storyID string) (*domain.Story, error) {
	var resp struct {
		Data domain.Story `json:"data"`
	}
	path := "/story/load?storyId=" + url.QueryEscape(storyID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data.StoryID == "" {
		return nil, errors.Wrap(errors.ErrNotFound, "story not returned by backend")
	}
	return &resp.Data, nil
}

func (c *StoryImpl) FetchHistoryByUserID(ctx context.Context, userID string) ([]domain.HistoryEntry, error) {
	var resp struct {
		Data struct {
			History []domain.HistoryEntry `json:"history"`
		} `json:"data"`
	}
	path := "/history?userId=" + url.QueryEscape(userID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.History, nil
}

func (c *StoryImpl) doJSON(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.tokens.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "story request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode story response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	message := body.Message
	if message == "" {
		message = body.Error
	}
	if message == "" {
		message = resp.Status
	}

	return errors.NewHTTP(resp.StatusCode, message)
}
