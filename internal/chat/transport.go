// Package chat holds the chat-platform contract used by distribution and conversations,
// plus the rendering strategy that copes with the platform's content-mode rules.
package chat

import (
	"context"
	"errors"

	"signal-relay/internal/domain"
)

const (
	MaxTextLength    = 4096
	MaxCaptionLength = 1024
)

var (
	// ErrIncompatibleMode is returned when a message cannot be edited into the requested
	// mode in place, e.g. editing the text of a photo message.
	ErrIncompatibleMode = domain.ErrRenderIncompatible
	// ErrNotModified is returned when an edit would leave the message unchanged.
	ErrNotModified = errors.New("message is not modified")
)

// Mode is what a displayed message currently holds.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeText
	ModeMedia
)

// MessageRef identifies a displayed message. Text holds its text or caption when known.
type MessageRef struct {
	ChatID    int64
	MessageID int
	Mode      Mode
	Text      string
}

func (m MessageRef) IsZero() bool { return m.ChatID == 0 && m.MessageID == 0 }

type MediaKind int

const (
	MediaPhoto MediaKind = iota
	MediaAnimation
)

type Media struct {
	Kind     MediaKind
	Bytes    []byte
	URL      string
	FileName string
}

type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is an inline keyboard, one slice per row.
type Keyboard [][]Button

func Row(buttons ...Button) []Button { return buttons }

func CallbackButton(text, data string) Button { return Button{Text: text, Data: data} }

func URLButton(text, url string) Button { return Button{Text: text, URL: url} }

// Transport is the send/edit/delete surface of the chat platform. Implementations map
// platform errors onto ErrIncompatibleMode and ErrNotModified.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) (MessageRef, error)
	SendPhoto(ctx context.Context, chatID int64, media Media, caption string, kb Keyboard) (MessageRef, error)
	EditText(ctx context.Context, msg MessageRef, text string, kb Keyboard) (MessageRef, error)
	EditCaption(ctx context.Context, msg MessageRef, caption string, kb Keyboard) (MessageRef, error)
	EditMedia(ctx context.Context, msg MessageRef, media Media, caption string, kb Keyboard) (MessageRef, error)
	DeleteMessage(ctx context.Context, msg MessageRef) error
}
