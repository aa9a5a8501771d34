package authapiimpl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	"github.com/google/uuid"
	"github.com/skazkalab/fairytale-engine/internal/authapi"
	"github.com/skazkalab/fairytale-engine/internal/config"
	"github.com/skazkalab/fairytale-engine/pkg/errors"
	"github.com/skazkalab/fairytale-engine/pkg/logger"
	"go.uber.org/fx"
)

const refreshStyleCookie = "cookie"

type AuthImpl struct {
	baseURL      string
	refreshStyle string
	httpClient   *http.Client
	logger       logger.Logger
}

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

func New(opts Opts) *AuthImpl {
	// The cookie jar carries the backend's httpOnly refresh cookie for
	// the cookie-based refresh variant.
	jar, _ := cookiejar.New(nil)

	return &AuthImpl{
		baseURL:      strings.TrimRight(opts.Config.API.BaseURL, "/"),
		refreshStyle: opts.Config.Auth.RefreshStyle,
		httpClient: &http.Client{
			Timeout: opts.Config.API.Timeout,
			Jar:     jar,
		},
		logger: opts.Logger,
	}
}

var _ authapi.Client = (*AuthImpl)(nil)

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
	} `json:"user"`
}

func (c *AuthImpl) GoogleLogin(ctx context.Context, idToken, accessToken string) (*authapi.LoginResult, error) {
	payload := map[string]string{
		"idToken":     idToken,
		"accessToken": accessToken,
	}

	var resp loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/google", payload, &resp); err != nil {
		return nil, err
	}

	c.logger.Info("Google login exchange succeeded", "user_id", resp.User.UserID)

	return &authapi.LoginResult{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		UserID:       resp.User.UserID,
		Email:        resp.User.Email,
	}, nil
}

func (c *AuthImpl) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var payload any
	if c.refreshStyle != refreshStyleCookie {
		payload = map[string]string{"refreshToken": refreshToken}
	}

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", payload, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", errors.New("refresh response carried no access token")
	}

	return resp.AccessToken, nil
}

func (c *AuthImpl) doJSON(ctx context.Context, method, path string, payload, out any) error {
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "auth request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
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
