// slack.go — клиент Slack OAuth v2: authorize URL, обмен code на токен
// (oauth.v2.access) и получение имени пользователя (users.info).
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// ErrSlack — Slack отклонил запрос или вернул некорректный ответ.
var ErrSlack = errors.New("ошибка Slack API")

// SlackConfig — конфигурация клиента Slack.
type SlackConfig struct {
	// BaseURL — https://slack.com (в тестах — адрес mock-сервера).
	BaseURL      string
	ClientID     string
	ClientSecret string
	// RedirectURI — callback приложения, зарегистрированный в Slack.
	RedirectURI string
	// HTTPClient — nil: создаётся клиент с таймаутом 30s.
	HTTPClient *http.Client
}

// Identity — пользователь, подтверждённый Slack.
type Identity struct {
	UserID      string
	UserName    string
	AccessToken string
}

// SlackClient — OAuth-клиент Slack.
type SlackClient struct {
	oauth      *oauth2.Config
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSlackClient создаёт клиент Slack OAuth v2.
func NewSlackClient(cfg SlackConfig, logger *slog.Logger) *SlackClient {
	base := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &SlackClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{"users:read"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/oauth/v2/authorize",
				TokenURL:  base + "/api/oauth.v2.access",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL:     base + "/api",
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "slack_oauth")),
	}
}

// AuthorizeURL формирует URL для redirect пользователя на страницу Slack.
func (c *SlackClient) AuthorizeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange обменивает authorization code на токен и получает имя пользователя.
func (c *SlackClient) Exchange(ctx context.Context, code string) (*Identity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: oauth.v2.access: %w", ErrSlack, err)
	}

	// Ошибки Slack приходят со статусом 200 и ok=false
	if ok, _ := tok.Extra("ok").(bool); !ok {
		slackErr, _ := tok.Extra("error").(string)
		return nil, fmt.Errorf("%w: oauth.v2.access: %s", ErrSlack, slackErr)
	}

	authed, _ := tok.Extra("authed_user").(map[string]any)
	userID, _ := authed["id"].(string)
	if userID == "" {
		return nil, fmt.Errorf("%w: oauth.v2.access: нет authed_user.id", ErrSlack)
	}

	name, err := c.userName(ctx, tok.AccessToken, userID)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Slack OAuth: пользователь подтверждён",
		slog.String("user_id", userID),
	)
	return &Identity{UserID: userID, UserName: name, AccessToken: tok.AccessToken}, nil
}

// usersInfoResponse — ответ users.info.
type usersInfoResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	User  struct {
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Profile  struct {
			RealName    string `json:"real_name"`
			DisplayName string `json:"display_name"`
		} `json:"profile"`
	} `json:"user"`
}

// userName запрашивает users.info. Порядок выбора имени:
// real_name, profile.real_name, profile.display_name, name.
func (c *SlackClient) userName(ctx context.Context, token, userID string) (string, error) {
	reqURL := c.apiURL + "/users.info?" + url.Values{"user": {userID}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка создания запроса: %w", err)
	}
	// Slack возвращает token_type "bot"/"user", заголовок всегда Bearer
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: users.info: %w", ErrSlack, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ошибка чтения ответа: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: users.info вернул статус %d", ErrSlack, resp.StatusCode)
	}

	var info usersInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("%w: users.info: %w", ErrSlack, err)
	}
	if !info.OK {
		return "", fmt.Errorf("%w: users.info: %s", ErrSlack, info.Error)
	}

	for _, name := range []string{
		info.User.RealName,
		info.User.Profile.RealName,
		info.User.Profile.DisplayName,
		info.User.Name,
	} {
		if name != "" {
			return name, nil
		}
	}
	return userID, nil
}
