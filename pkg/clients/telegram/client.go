package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"driftwood/pkg/clients"
	"driftwood/pkg/logging"
	"driftwood/pkg/models"
)

const defaultAPIBaseURL = "https://api.telegram.org"

// Config represents the configuration for the Telegram blob-store client
type Config struct {
	BotToken      string
	ChannelID     string
	APIBaseURL    string
	UploadTimeout time.Duration
	Logger        logging.Logger
}

// Client archives media into a Telegram channel through the Bot API. The
// file_id Telegram assigns is the durable reference; getFile turns it back
// into a downloadable URL.
type Client struct {
	rest      *resty.Client
	baseURL   string
	botToken  string
	channelID string
	logger    logging.Logger
}

// NewClient creates a new Telegram blob-store client
func NewClient(config Config) *Client {
	if config.UploadTimeout == 0 {
		config.UploadTimeout = 5 * time.Minute
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}

	// Uploads are idempotent in effect (a re-sent artifact just becomes
	// another channel message), so a bounded retry is safe.
	rest := resty.New().
		SetTransport(clients.DefaultTransport()).
		SetTimeout(config.UploadTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)

	return &Client{
		rest:      rest,
		baseURL:   config.APIBaseURL,
		botToken:  config.BotToken,
		channelID: config.ChannelID,
		logger:    config.Logger,
	}
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type fileRef struct {
	FileID string `json:"file_id"`
}

type sentMessage struct {
	MessageID int64    `json:"message_id"`
	Audio     *fileRef `json:"audio"`
	Video     *fileRef `json:"video"`
	Document  *fileRef `json:"document"`
}

type fileInfo struct {
	FileID   string `json:"file_id"`
	FilePath string `json:"file_path"`
}

func (c *Client) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.botToken, name)
}

// Upload sends a local artifact to the configured channel and returns the
// durable file_id. Audio goes through sendAudio, video through sendVideo.
func (c *Client) Upload(ctx context.Context, path string, kind models.MediaKind, title, caption string) (string, error) {
	method := "sendAudio"
	fileField := "audio"
	if kind == models.MediaKindVideo {
		method = "sendVideo"
		fileField = "video"
	}

	form := map[string]string{
		"chat_id": c.channelID,
		"caption": caption,
	}
	if kind == models.MediaKindAudio {
		form["title"] = title
	} else {
		form["supports_streaming"] = "true"
	}

	var envelope apiResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFile(fileField, path).
		SetFormData(form).
		SetResult(&envelope).
		Post(c.method(method))
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	if resp.IsError() || !envelope.Ok {
		return "", fmt.Errorf("%s: blob store rejected upload (%d): %s", method, resp.StatusCode(), envelope.Description)
	}

	var message sentMessage
	if err := json.Unmarshal(envelope.Result, &message); err != nil {
		return "", fmt.Errorf("%s: decode response: %w", method, err)
	}

	var ref *fileRef
	switch {
	case message.Audio != nil:
		ref = message.Audio
	case message.Video != nil:
		ref = message.Video
	case message.Document != nil:
		ref = message.Document
	}
	if ref == nil || ref.FileID == "" {
		return "", fmt.Errorf("%s: blob store returned no file reference", method)
	}

	return ref.FileID, nil
}

// FileURL resolves a durable file_id to a direct download URL.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	var envelope apiResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("file_id", fileID).
		SetResult(&envelope).
		Get(c.method("getFile"))
	if err != nil {
		return "", fmt.Errorf("getFile: %w", err)
	}
	if resp.IsError() || !envelope.Ok {
		return "", fmt.Errorf("getFile: blob store returned %d: %s", resp.StatusCode(), envelope.Description)
	}

	var info fileInfo
	if err := json.Unmarshal(envelope.Result, &info); err != nil {
		return "", fmt.Errorf("getFile: decode response: %w", err)
	}
	if info.FilePath == "" {
		return "", fmt.Errorf("getFile: no file path for %s", fileID)
	}

	return fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.botToken, info.FilePath), nil
}

// Ping checks Bot API reachability for health reporting.
func (c *Client) Ping(ctx context.Context) error {
	var envelope apiResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(c.method("getMe"))
	if err != nil {
		return err
	}
	if resp.IsError() || !envelope.Ok {
		return fmt.Errorf("getMe returned %d: %s", resp.StatusCode(), envelope.Description)
	}
	return nil
}
