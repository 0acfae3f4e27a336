// infrastructure/graph_api_client.go
package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vitovidale/autosplit-service/domain"
	"github.com/vitovidale/autosplit-service/usecase"
)

var (
	_ domain.Messenger      = (*GraphAPIClient)(nil)
	_ domain.ProfileService = (*GraphAPIClient)(nil)
	_ usecase.ReelAPI       = (*GraphAPIClient)(nil)
)

// TokenSource yields the current page access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// GraphAPIError is the error object returned by the Graph API.
type GraphAPIError struct {
	Status  int
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (e *GraphAPIError) Error() string {
	return fmt.Sprintf("graph api: status %d: %s (%s, code %d)", e.Status, e.Message, e.Type, e.Code)
}

// GraphAPIClient talks to the messaging platform: profile lookup, the send
// API, reel publishing and token refresh.
type GraphAPIClient struct {
	BaseURL   string
	DomainURL string
	Tokens    TokenSource
	Client    *http.Client
	Logger    *zap.Logger
}

func NewGraphAPIClient(baseURL, domainURL string, tokens TokenSource, timeout time.Duration, logger *zap.Logger) *GraphAPIClient {
	return &GraphAPIClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		DomainURL: strings.TrimRight(domainURL, "/"),
		Tokens:    tokens,
		Client:    &http.Client{Timeout: timeout},
		Logger:    logger.Named("GraphAPIClient"),
	}
}

func (c *GraphAPIClient) token(ctx context.Context) string {
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		c.Logger.Warn("Falling back to configured access token", zap.Error(err))
	}
	return token
}

func (c *GraphAPIClient) Username(ctx context.Context, senderID string) (string, error) {
	q := url.Values{
		"fields":       {"username,name,id"},
		"access_token": {c.token(ctx)},
	}
	var profile struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Name     string `json:"name"`
	}
	if err := c.get(ctx, c.BaseURL+"/"+url.PathEscape(senderID), q, &profile); err != nil {
		return "", fmt.Errorf("load profile for %s: %w", senderID, err)
	}
	return profile.Username, nil
}

type sendRecipient struct {
	ID string `json:"id"`
}

type sendButton struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type sendTemplatePayload struct {
	TemplateType string       `json:"template_type"`
	Text         string       `json:"text"`
	Buttons      []sendButton `json:"buttons"`
}

type sendAttachment struct {
	Type    string              `json:"type"`
	Payload sendTemplatePayload `json:"payload"`
}

type sendMessage struct {
	Text       string          `json:"text,omitempty"`
	Attachment *sendAttachment `json:"attachment,omitempty"`
}

type sendRequest struct {
	Recipient sendRecipient `json:"recipient"`
	Message   sendMessage   `json:"message"`
}

// messagePayload renders msg as plain text, or as a button template when it
// carries buttons.
func messagePayload(msg domain.ReplyMessage) sendMessage {
	if len(msg.Buttons) == 0 {
		return sendMessage{Text: msg.Text}
	}
	buttons := make([]sendButton, 0, len(msg.Buttons))
	for _, b := range msg.Buttons {
		buttons = append(buttons, sendButton{Type: "web_url", URL: b.URL, Title: b.Title})
	}
	return sendMessage{Attachment: &sendAttachment{
		Type: "template",
		Payload: sendTemplatePayload{
			TemplateType: "button",
			Text:         msg.Text,
			Buttons:      buttons,
		},
	}}
}

func (c *GraphAPIClient) Send(ctx context.Context, recipient string, msg domain.ReplyMessage) error {
	body, err := json.Marshal(sendRequest{
		Recipient: sendRecipient{ID: recipient},
		Message:   messagePayload(msg),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/me/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token(ctx))
	req.Header.Set("Content-Type", "application/json")
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("send message to %s: %w", recipient, err)
	}
	return nil
}

func (c *GraphAPIClient) CreateReelContainer(ctx context.Context, accessToken, videoURL, caption string) (string, error) {
	form := url.Values{
		"media_type":   {"REELS"},
		"video_url":    {videoURL},
		"access_token": {accessToken},
	}
	if caption != "" {
		form.Set("caption", caption)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, c.BaseURL+"/me/media", form, &out); err != nil {
		return "", fmt.Errorf("create reel container: %w", err)
	}
	return out.ID, nil
}

func (c *GraphAPIClient) ContainerStatus(ctx context.Context, accessToken, containerID string) (string, error) {
	q := url.Values{
		"fields":       {"status_code"},
		"access_token": {accessToken},
	}
	var out struct {
		StatusCode string `json:"status_code"`
	}
	if err := c.get(ctx, c.BaseURL+"/"+url.PathEscape(containerID), q, &out); err != nil {
		return "", fmt.Errorf("container %s status: %w", containerID, err)
	}
	return out.StatusCode, nil
}

func (c *GraphAPIClient) PublishContainer(ctx context.Context, accessToken, containerID string) (string, error) {
	form := url.Values{
		"creation_id":  {containerID},
		"access_token": {accessToken},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, c.BaseURL+"/me/media_publish", form, &out); err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	return out.ID, nil
}

// RefreshedToken is a long-lived token and its lifetime.
type RefreshedToken struct {
	AccessToken string
	ExpiresIn   time.Duration
}

func (c *GraphAPIClient) RefreshToken(ctx context.Context) (RefreshedToken, error) {
	q := url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {c.token(ctx)},
	}
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.get(ctx, c.DomainURL+"/refresh_access_token", q, &out); err != nil {
		return RefreshedToken{}, fmt.Errorf("refresh access token: %w", err)
	}
	if out.AccessToken == "" {
		return RefreshedToken{}, fmt.Errorf("refresh access token: empty token in response")
	}
	return RefreshedToken{AccessToken: out.AccessToken, ExpiresIn: time.Duration(out.ExpiresIn) * time.Second}, nil
}

func (c *GraphAPIClient) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *GraphAPIClient) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *GraphAPIClient) do(req *http.Request, out any) error {
	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &GraphAPIError{Status: resp.StatusCode}
		var envelope struct {
			Error *GraphAPIError `json:"error"`
		}
		if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
			envelope.Error.Status = resp.StatusCode
			apiErr = envelope.Error
		} else {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
