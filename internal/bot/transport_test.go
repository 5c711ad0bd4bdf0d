package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"signal-relay/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"
)

type fakeTelegram struct {
	sent    []interface{}
	opts    []*tele.SendOptions
	edited  []tele.Editable
	reply   *tele.Message
	err     error
	block   chan struct{}
	deleted int
}

func (f *fakeTelegram) record(what interface{}, opts []interface{}) (*tele.Message, error) {
	if f.block != nil {
		<-f.block
	}
	f.sent = append(f.sent, what)
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			f.opts = append(f.opts, so)
		}
	}
	return f.reply, f.err
}

func (f *fakeTelegram) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	return f.record(what, opts)
}

func (f *fakeTelegram) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.edited = append(f.edited, msg)
	return f.record(what, opts)
}

func (f *fakeTelegram) EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error) {
	f.edited = append(f.edited, msg)
	return f.record(caption, opts)
}

func (f *fakeTelegram) EditMedia(msg tele.Editable, media tele.Inputtable, opts ...interface{}) (*tele.Message, error) {
	f.edited = append(f.edited, msg)
	return f.record(media, opts)
}

func (f *fakeTelegram) Delete(msg tele.Editable) error {
	f.deleted++
	return f.err
}

func TestTransportSendMessage(t *testing.T) {
	api := &fakeTelegram{reply: &tele.Message{ID: 77, Chat: &tele.Chat{ID: 5}, Text: "hello"}}
	tr := NewTelegramTransport(api)

	ref, err := tr.SendMessage(context.Background(), 5, "hello", chat.Keyboard{chat.Row(chat.CallbackButton("Go", "menu_analyse"))})
	require.NoError(t, err)
	assert.Equal(t, chat.MessageRef{ChatID: 5, MessageID: 77, Mode: chat.ModeText, Text: "hello"}, ref)

	require.Len(t, api.opts, 1)
	assert.Equal(t, tele.ModeHTML, api.opts[0].ParseMode)
	assert.Equal(t, "menu_analyse", api.opts[0].ReplyMarkup.InlineKeyboard[0][0].Data)
}

func TestTransportSendPhotoFromBytes(t *testing.T) {
	api := &fakeTelegram{reply: &tele.Message{ID: 8, Chat: &tele.Chat{ID: 5}, Photo: &tele.Photo{}, Caption: "chart"}}
	tr := NewTelegramTransport(api)

	ref, err := tr.SendPhoto(context.Background(), 5, chat.Media{Bytes: []byte("png")}, "chart", nil)
	require.NoError(t, err)
	assert.Equal(t, chat.ModeMedia, ref.Mode)
	assert.Equal(t, "chart", ref.Text)

	photo, ok := api.sent[0].(*tele.Photo)
	require.True(t, ok)
	assert.Equal(t, "chart", photo.Caption)
	assert.Nil(t, api.opts[0].ReplyMarkup)
}

func TestTransportEditTargetsStoredMessage(t *testing.T) {
	api := &fakeTelegram{}
	tr := NewTelegramTransport(api)
	target := chat.MessageRef{ChatID: 5, MessageID: 12, Mode: chat.ModeText}

	ref, err := tr.EditText(context.Background(), target, "updated", nil)
	require.NoError(t, err)
	assert.Equal(t, "updated", ref.Text)
	assert.Equal(t, 12, ref.MessageID)

	msgID, chatID := api.edited[0].MessageSig()
	assert.Equal(t, "12", msgID)
	assert.Equal(t, int64(5), chatID)
}

func TestTransportClassifiesErrors(t *testing.T) {
	target := chat.MessageRef{ChatID: 5, MessageID: 12}

	api := &fakeTelegram{err: errors.New("telegram: Bad Request: message is not modified (400)")}
	_, err := NewTelegramTransport(api).EditText(context.Background(), target, "same", nil)
	assert.ErrorIs(t, err, chat.ErrNotModified)

	api = &fakeTelegram{err: errors.New("telegram: Bad Request: there is no caption in the message to edit (400)")}
	_, err = NewTelegramTransport(api).EditCaption(context.Background(), target, "x", nil)
	assert.ErrorIs(t, err, chat.ErrIncompatibleMode)

	api = &fakeTelegram{err: errors.New("telegram: Forbidden: bot was blocked by the user (403)")}
	_, err = NewTelegramTransport(api).SendMessage(context.Background(), 5, "x", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, chat.ErrIncompatibleMode)
}

func TestTransportHonoursContext(t *testing.T) {
	api := &fakeTelegram{block: make(chan struct{})}
	defer close(api.block)
	tr := NewTelegramTransport(api)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := tr.SendMessage(ctx, 5, "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	err = tr.DeleteMessage(cancelled, chat.MessageRef{ChatID: 5, MessageID: 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, api.deleted)
}
