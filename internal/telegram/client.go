package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	maxTextBytes    = 4096
	maxCaptionBytes = 1024
)

type Options struct {
	Token      string
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Debug      bool
	// Endpoint overrides tgbotapi.APIEndpoint; it takes the token and method.
	Endpoint string
}

type Client struct {
	bot        *tgbotapi.BotAPI
	httpClient *http.Client
	logger     zerolog.Logger
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("http client is nil")
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, opts.HTTPClient)
	if err != nil {
		return nil, errors.Wrap(err, "telegram getMe")
	}
	bot.Debug = opts.Debug

	return &Client{
		bot:        bot,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
	}, nil
}

func (c *Client) Username() string {
	return c.bot.Self.UserName
}

type Update = tgbotapi.Update

type UpdatesOptions struct {
	Timeout time.Duration
}

func (c *Client) Updates(opts UpdatesOptions) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	if opts.Timeout > 0 {
		u.Timeout = int(opts.Timeout.Seconds())
	}
	u.AllowedUpdates = []string{"message", "callback_query"}
	return c.bot.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

// Card is one rendered content item: a text message, or a photo whose caption
// carries the text, with the item's inline keyboard.
type Card struct {
	Text      string
	Photo     []byte
	PhotoName string
	Keyboard  tgbotapi.InlineKeyboardMarkup
}

func (c Card) IsPhoto() bool {
	return len(c.Photo) > 0
}

func (c *Client) SendText(chatID int64, text string) error {
	for _, p := range splitByBytes(text, maxTextBytes) {
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, p)); err != nil {
			return errors.Wrap(err, "send message")
		}
	}
	return nil
}

func (c *Client) SendCard(chatID int64, card Card) (int, error) {
	kb := card.Keyboard

	if card.IsPhoto() {
		name := card.PhotoName
		if name == "" {
			name = "image.png"
		}
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: name, Bytes: card.Photo})
		photo.Caption = truncateByBytes(card.Text, maxCaptionBytes)
		if hasButtons(kb) {
			photo.ReplyMarkup = kb
		}
		msg, err := c.bot.Send(photo)
		if err != nil {
			return 0, errors.Wrap(err, "send photo card")
		}
		return msg.MessageID, nil
	}

	out := tgbotapi.NewMessage(chatID, truncateByBytes(card.Text, maxTextBytes))
	if hasButtons(kb) {
		out.ReplyMarkup = kb
	}
	msg, err := c.bot.Send(out)
	if err != nil {
		return 0, errors.Wrap(err, "send card")
	}
	return msg.MessageID, nil
}

// EditCard rewrites a card's text (or caption) and keyboard in place. The
// photo itself cannot change; callers resend the card for that.
func (c *Client) EditCard(chatID int64, messageID int, card Card) error {
	kb := card.Keyboard

	var markup *tgbotapi.InlineKeyboardMarkup
	if hasButtons(kb) {
		markup = &kb
	}

	var edit tgbotapi.Chattable
	if card.IsPhoto() {
		cfg := tgbotapi.NewEditMessageCaption(chatID, messageID, truncateByBytes(card.Text, maxCaptionBytes))
		cfg.ReplyMarkup = markup
		edit = cfg
	} else {
		cfg := tgbotapi.NewEditMessageText(chatID, messageID, truncateByBytes(card.Text, maxTextBytes))
		cfg.ReplyMarkup = markup
		edit = cfg
	}

	if _, err := c.bot.Request(edit); err != nil {
		if isNotModified(err) {
			return nil
		}
		return errors.Wrap(err, "edit card")
	}
	return nil
}

func (c *Client) DeleteMessage(chatID int64, messageID int) error {
	if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return errors.Wrap(err, "delete message")
	}
	return nil
}

func (c *Client) AnswerCallback(callbackID, text string) error {
	if _, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return errors.Wrap(err, "answer callback")
	}
	return nil
}

func (c *Client) SendDocument(chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = truncateByBytes(caption, maxCaptionBytes)
	if _, err := c.bot.Send(doc); err != nil {
		return errors.Wrap(err, "send document")
	}
	return nil
}

// DownloadFile fetches a Telegram file and reports the MIME type the file
// server declared, which may be empty.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", errors.Wrap(err, "resolve file")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "create file request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL embeds the bot token.
		return nil, "", errors.New("telegram file download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("telegram file download %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "read file")
	}

	mimeType := strings.TrimSpace(resp.Header.Get("content-type"))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	c.logger.Debug().Str("file_id", fileID).Int("bytes", len(data)).Str("mime", mimeType).Msg("telegram file downloaded")
	return data, mimeType, nil
}

func hasButtons(kb tgbotapi.InlineKeyboardMarkup) bool {
	return len(kb.InlineKeyboard) > 0
}

func isNotModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}

func splitByBytes(text string, maxBytes int) []string {
	if len(text) <= maxBytes || maxBytes <= 0 {
		return []string{text}
	}

	var out []string
	var buf strings.Builder
	buf.Grow(maxBytes)

	for _, r := range text {
		n := utf8.RuneLen(r)
		if n < 0 {
			n = len(string(r))
		}
		if buf.Len() > 0 && buf.Len()+n > maxBytes {
			out = append(out, buf.String())
			buf.Reset()
		}
		buf.WriteRune(r)
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

func truncateByBytes(text string, maxBytes int) string {
	if len(text) <= maxBytes || maxBytes <= 0 {
		return text
	}

	const ellipsis = "…"
	limit := maxBytes - len(ellipsis)

	var buf strings.Builder
	buf.Grow(maxBytes)
	for _, r := range text {
		n := utf8.RuneLen(r)
		if n < 0 {
			n = len(string(r))
		}
		if buf.Len()+n > limit {
			break
		}
		buf.WriteRune(r)
	}
	buf.WriteString(ellipsis)
	return buf.String()
}
