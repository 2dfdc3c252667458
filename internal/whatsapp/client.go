package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"escalafin-messaging/pkg/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	endpointSendText  = "/api/sendText"
	endpointSendImage = "/api/sendImage"
	endpointSendFile  = "/api/sendFile"
)

// ProviderConfig is the active WAHA session a call is made with.
type ProviderConfig struct {
	BaseURL   string
	SessionID string
	APIKey    string
}

// SendResult is what WAHA answered for an accepted message.
type SendResult struct {
	MessageID string
	Raw       string
}

// MediaFile describes a file WAHA downloads from a URL.
type MediaFile struct {
	URL      string
	MimeType string
	FileName string
}

// Sender is the provider surface the Gateway depends on.
type Sender interface {
	SendText(ctx context.Context, cfg ProviderConfig, chatID, text string) (*SendResult, error)
	SendMedia(ctx context.Context, cfg ProviderConfig, chatID string, file MediaFile, caption string) (*SendResult, error)
}

// Client is a resty-backed WAHA API client. Base URL and credentials are supplied
// per call since they live in the database.
type Client struct {
	http *resty.Client
	log  *zap.Logger
}

// NewClient builds a WAHA client with the given request timeout.
func NewClient(timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	httpClient := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &Client{http: httpClient, log: log.Named("waha")}
}

type textPayload struct {
	ChatID  string `json:"chatId"`
	Text    string `json:"text"`
	Session string `json:"session"`
}

type filePayload struct {
	MimeType string `json:"mimetype"`
	FileName string `json:"filename"`
	URL      string `json:"url"`
}

type mediaPayload struct {
	ChatID  string      `json:"chatId"`
	Caption string      `json:"caption,omitempty"`
	Session string      `json:"session"`
	File    filePayload `json:"file"`
}

// SendText posts a text message to /api/sendText.
func (c *Client) SendText(ctx context.Context, cfg ProviderConfig, chatID, text string) (*SendResult, error) {
	return c.post(ctx, cfg, endpointSendText, textPayload{
		ChatID:  chatID,
		Text:    text,
		Session: cfg.SessionID,
	})
}

// SendMedia posts to /api/sendImage for images and /api/sendFile otherwise.
func (c *Client) SendMedia(ctx context.Context, cfg ProviderConfig, chatID string, file MediaFile, caption string) (*SendResult, error) {
	endpoint := endpointSendFile
	if isImage(file.MimeType) {
		endpoint = endpointSendImage
	}
	return c.post(ctx, cfg, endpoint, mediaPayload{
		ChatID:  chatID,
		Caption: caption,
		Session: cfg.SessionID,
		File: filePayload{
			MimeType: file.MimeType,
			FileName: file.FileName,
			URL:      file.URL,
		},
	})
}

func (c *Client) post(ctx context.Context, cfg ProviderConfig, endpoint string, payload any) (*SendResult, error) {
	req := c.http.R().SetContext(ctx).SetBody(payload)
	if cfg.APIKey != "" {
		req.SetHeader("X-Api-Key", cfg.APIKey)
	}

	started := time.Now()
	resp, err := req.Post(strings.TrimRight(cfg.BaseURL, "/") + endpoint)
	metrics.ProviderLatency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	if err != nil {
		c.log.Warn("waha request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &ProviderError{Endpoint: endpoint, Err: err}
	}

	body := resp.String()
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		c.log.Warn("waha rejected message",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode()),
			zap.String("body", body),
		)
		return nil, &ProviderError{Endpoint: endpoint, StatusCode: resp.StatusCode(), Body: body}
	}

	return &SendResult{MessageID: parseMessageID(resp.Body()), Raw: body}, nil
}

// parseMessageID extracts the provider id. WAHA engines answer either
// {"id": "..."} or {"id": {"_serialized": "...", ...}}; some nest it under "key".
func parseMessageID(body []byte) string {
	var envelope struct {
		ID  json.RawMessage `json:"id"`
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}

	if len(envelope.ID) > 0 {
		var s string
		if json.Unmarshal(envelope.ID, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Serialized string `json:"_serialized"`
			ID         string `json:"id"`
		}
		if json.Unmarshal(envelope.ID, &obj) == nil {
			if obj.Serialized != "" {
				return obj.Serialized
			}
			if obj.ID != "" {
				return obj.ID
			}
		}
	}
	return envelope.Key.ID
}
