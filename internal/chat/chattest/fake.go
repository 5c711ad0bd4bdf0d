// Package chattest provides an in-memory chat.Transport that enforces the platform's
// text/media edit rules.
package chattest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"signal-relay/internal/chat"
)

type Message struct {
	ChatID   int64
	ID       int
	Mode     chat.Mode
	Text     string
	Media    *chat.Media
	Keyboard chat.Keyboard
	Deleted  bool
}

// Transport records every call. Set FailSend or FailDelete to inject errors.
type Transport struct {
	mu       sync.Mutex
	nextID   int
	messages map[int]*Message
	Calls    []string

	FailSend   map[int64]error
	FailDelete error
	FailEdits  error
}

func New() *Transport {
	return &Transport{messages: make(map[int]*Message), FailSend: make(map[int64]error)}
}

// Seed places an existing message on screen and returns its reference.
func (t *Transport) Seed(chatID int64, mode chat.Mode, text string) chat.MessageRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := t.store(chatID, mode, text, nil, nil)
	return chat.MessageRef{ChatID: chatID, MessageID: msg.ID, Mode: mode, Text: text}
}

func (t *Transport) SendMessage(ctx context.Context, chatID int64, text string, kb chat.Keyboard) (chat.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, "send_message")
	if err := t.FailSend[chatID]; err != nil {
		return chat.MessageRef{}, err
	}
	msg := t.store(chatID, chat.ModeText, text, nil, kb)
	return ref(msg), nil
}

func (t *Transport) SendPhoto(ctx context.Context, chatID int64, media chat.Media, caption string, kb chat.Keyboard) (chat.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, "send_photo")
	if err := t.FailSend[chatID]; err != nil {
		return chat.MessageRef{}, err
	}
	msg := t.store(chatID, chat.ModeMedia, caption, &media, kb)
	return ref(msg), nil
}

func (t *Transport) EditText(ctx context.Context, target chat.MessageRef, text string, kb chat.Keyboard) (chat.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, "edit_text")
	msg, err := t.editable(target)
	if err != nil {
		return chat.MessageRef{}, err
	}
	if msg.Mode != chat.ModeText {
		return chat.MessageRef{}, fmt.Errorf("there is no text in the message to edit: %w", chat.ErrIncompatibleMode)
	}
	if msg.Text == text {
		return chat.MessageRef{}, chat.ErrNotModified
	}
	msg.Text, msg.Keyboard = text, kb
	return ref(msg), nil
}

func (t *Transport) EditCaption(ctx context.Context, target chat.MessageRef, caption string, kb chat.Keyboard) (chat.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, "edit_caption")
	msg, err := t.editable(target)
	if err != nil {
		return chat.MessageRef{}, err
	}
	if msg.Mode != chat.ModeMedia {
		return chat.MessageRef{}, fmt.Errorf("there is no caption in the message to edit: %w", chat.ErrIncompatibleMode)
	}
	msg.Text, msg.Keyboard = caption, kb
	return ref(msg), nil
}

func (t *Transport) EditMedia(ctx context.Context, target chat.MessageRef, media chat.Media, caption string, kb chat.Keyboard) (chat.MessageRef, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, "edit_media")
	msg, err := t.editable(target)
	if err != nil {
		return chat.MessageRef{}, err
	}
	if msg.Mode != chat.ModeMedia {
		return chat.MessageRef{}, fmt.Errorf("there is no media in the message to edit: %w", chat.ErrIncompatibleMode)
	}
	msg.Media, msg.Text, msg.Keyboard = &media, caption, kb
	return ref(msg), nil
}

func (t *Transport) DeleteMessage(ctx context.Context, target chat.MessageRef) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, "delete_message")
	if t.FailDelete != nil {
		return t.FailDelete
	}
	msg, ok := t.messages[target.MessageID]
	if !ok || msg.Deleted {
		return errors.New("message to delete not found")
	}
	msg.Deleted = true
	return nil
}

// Visible returns the live messages of a chat in send order.
func (t *Transport) Visible(chatID int64) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int, 0, len(t.messages))
	for id, msg := range t.messages {
		if msg.ChatID == chatID && !msg.Deleted {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *t.messages[id])
	}
	return out
}

// Last returns the most recent live message of a chat.
func (t *Transport) Last(chatID int64) (Message, bool) {
	msgs := t.Visible(chatID)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// CallCount counts calls by name.
func (t *Transport) CallCount(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (t *Transport) store(chatID int64, mode chat.Mode, text string, media *chat.Media, kb chat.Keyboard) *Message {
	t.nextID++
	msg := &Message{ChatID: chatID, ID: t.nextID, Mode: mode, Text: text, Media: media, Keyboard: kb}
	t.messages[msg.ID] = msg
	return msg
}

func (t *Transport) editable(target chat.MessageRef) (*Message, error) {
	if t.FailEdits != nil {
		return nil, t.FailEdits
	}
	msg, ok := t.messages[target.MessageID]
	if !ok || msg.Deleted {
		return nil, errors.New("message to edit not found")
	}
	return msg, nil
}

func ref(msg *Message) chat.MessageRef {
	return chat.MessageRef{ChatID: msg.ChatID, MessageID: msg.ID, Mode: msg.Mode, Text: msg.Text}
}

// HasButton reports whether a keyboard carries a button with the given callback data.
func HasButton(kb chat.Keyboard, data string) bool {
	for _, row := range kb {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}
