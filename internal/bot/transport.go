package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"signal-relay/internal/chat"

	tele "gopkg.in/telebot.v3"
)

// telegramAPI is the slice of *tele.Bot the transport drives.
type telegramAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error)
	EditMedia(msg tele.Editable, media tele.Inputtable, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Telegram rejects edits whose kind does not match the message with one of these.
var incompatibleEditErrors = []string{
	"there is no text in the message to edit",
	"there is no caption in the message to edit",
	"there is no media in the message to edit",
	"message can't be edited",
	"message to edit not found",
}

// TelegramTransport implements chat.Transport on top of the Bot API.
type TelegramTransport struct {
	api telegramAPI
}

func NewTelegramTransport(api telegramAPI) *TelegramTransport {
	return &TelegramTransport{api: api}
}

func (t *TelegramTransport) SendMessage(ctx context.Context, chatID int64, text string, kb chat.Keyboard) (chat.MessageRef, error) {
	return t.call(ctx, chat.MessageRef{ChatID: chatID, Mode: chat.ModeText, Text: text}, func() (*tele.Message, error) {
		return t.api.Send(&tele.Chat{ID: chatID}, text, sendOptions(kb))
	})
}

func (t *TelegramTransport) SendPhoto(ctx context.Context, chatID int64, media chat.Media, caption string, kb chat.Keyboard) (chat.MessageRef, error) {
	return t.call(ctx, chat.MessageRef{ChatID: chatID, Mode: chat.ModeMedia, Text: caption}, func() (*tele.Message, error) {
		return t.api.Send(&tele.Chat{ID: chatID}, inputMedia(media, caption), sendOptions(kb))
	})
}

func (t *TelegramTransport) EditText(ctx context.Context, target chat.MessageRef, text string, kb chat.Keyboard) (chat.MessageRef, error) {
	want := target
	want.Mode, want.Text = chat.ModeText, text
	return t.call(ctx, want, func() (*tele.Message, error) {
		return t.api.Edit(stored(target), text, sendOptions(kb))
	})
}

func (t *TelegramTransport) EditCaption(ctx context.Context, target chat.MessageRef, caption string, kb chat.Keyboard) (chat.MessageRef, error) {
	want := target
	want.Mode, want.Text = chat.ModeMedia, caption
	return t.call(ctx, want, func() (*tele.Message, error) {
		return t.api.EditCaption(stored(target), caption, sendOptions(kb))
	})
}

func (t *TelegramTransport) EditMedia(ctx context.Context, target chat.MessageRef, media chat.Media, caption string, kb chat.Keyboard) (chat.MessageRef, error) {
	want := target
	want.Mode, want.Text = chat.ModeMedia, caption
	return t.call(ctx, want, func() (*tele.Message, error) {
		return t.api.EditMedia(stored(target), inputMedia(media, caption), sendOptions(kb))
	})
}

func (t *TelegramTransport) DeleteMessage(ctx context.Context, target chat.MessageRef) error {
	_, err := t.call(ctx, target, func() (*tele.Message, error) {
		return nil, t.api.Delete(stored(target))
	})
	return err
}

// call runs a blocking Bot API request, giving up when ctx ends. A nil message (inline
// edits) keeps the expected reference.
func (t *TelegramTransport) call(ctx context.Context, want chat.MessageRef, fn func() (*tele.Message, error)) (chat.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return chat.MessageRef{}, err
	}

	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := fn()
		done <- result{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return chat.MessageRef{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return chat.MessageRef{}, classifyError(r.err)
		}
		if r.msg == nil {
			return want, nil
		}
		return refFromMessage(r.msg, want), nil
	}
}

func classifyError(err error) error {
	text := strings.ToLower(err.Error())
	if strings.Contains(text, "message is not modified") {
		return fmt.Errorf("%w: %w", chat.ErrNotModified, err)
	}
	for _, needle := range incompatibleEditErrors {
		if strings.Contains(text, needle) {
			return fmt.Errorf("%w: %w", chat.ErrIncompatibleMode, err)
		}
	}
	return err
}

func refFromMessage(msg *tele.Message, want chat.MessageRef) chat.MessageRef {
	ref := chat.MessageRef{ChatID: want.ChatID, MessageID: msg.ID, Mode: chat.ModeText, Text: msg.Text}
	if msg.Chat != nil {
		ref.ChatID = msg.Chat.ID
	}
	if msg.Photo != nil || msg.Animation != nil || msg.Video != nil || msg.Document != nil {
		ref.Mode = chat.ModeMedia
		ref.Text = msg.Caption
	}
	if ref.MessageID == 0 {
		ref.MessageID = want.MessageID
	}
	return ref
}

func stored(ref chat.MessageRef) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
}

func sendOptions(kb chat.Keyboard) *tele.SendOptions {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if len(kb) > 0 {
		opts.ReplyMarkup = replyMarkup(kb)
	}
	return opts
}

func replyMarkup(kb chat.Keyboard) *tele.ReplyMarkup {
	rows := make([][]tele.InlineButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tele.InlineButton{Text: b.Text, Data: b.Data, URL: b.URL})
		}
		rows = append(rows, buttons)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

func inputMedia(media chat.Media, caption string) tele.Inputtable {
	file := tele.FromURL(media.URL)
	if len(media.Bytes) > 0 {
		file = tele.FromReader(bytes.NewReader(media.Bytes))
	}
	if media.Kind == chat.MediaAnimation {
		return &tele.Animation{File: file, Caption: caption, FileName: media.FileName}
	}
	return &tele.Photo{File: file, Caption: caption}
}
