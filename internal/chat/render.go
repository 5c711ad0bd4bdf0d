package chat

import (
	"context"
	"errors"
	"time"

	"signal-relay/internal/fallback"

	"github.com/rs/zerolog"
)

const defaultRenderTimeout = 10 * time.Second

type ContentKind int

const (
	KindText ContentKind = iota
	KindCaption
	KindMedia
	KindFresh
)

// Content is what a screen should show next.
type Content struct {
	Kind     ContentKind
	Text     string
	Media    *Media
	Keyboard Keyboard
}

func Text(text string, kb Keyboard) Content {
	return Content{Kind: KindText, Text: text, Keyboard: kb}
}

func Caption(text string, kb Keyboard) Content {
	return Content{Kind: KindCaption, Text: text, Keyboard: kb}
}

func Photo(media Media, caption string, kb Keyboard) Content {
	return Content{Kind: KindMedia, Text: caption, Media: &media, Keyboard: kb}
}

// Fresh deletes the target (if any) and sends new content; media is optional.
func Fresh(text string, media *Media, kb Keyboard) Content {
	return Content{Kind: KindFresh, Text: text, Media: media, Keyboard: kb}
}

// Renderer puts content on screen, degrading from in-place edits to a fresh message.
type Renderer struct {
	transport Transport
	logger    zerolog.Logger
	timeout   time.Duration
}

func NewRenderer(transport Transport, logger zerolog.Logger, timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	return &Renderer{transport: transport, logger: logger, timeout: timeout}
}

// Render shows content in place of target. A zero target always sends a new message.
func (r *Renderer) Render(ctx context.Context, chatID int64, target MessageRef, content Content) (MessageRef, error) {
	if target.IsZero() {
		return r.send(ctx, chatID, content)
	}
	if content.Kind == KindFresh {
		return fallback.First(ctx, "render.fresh", r.logger, r.replaceStep(chatID, target, content))
	}
	return fallback.First(ctx, "render", r.logger,
		r.inPlaceStep(target, content),
		r.swapModeStep(target, content),
		r.replaceStep(chatID, target, content),
	)
}

// Send always posts a new message.
func (r *Renderer) Send(ctx context.Context, chatID int64, content Content) (MessageRef, error) {
	return r.send(ctx, chatID, content)
}

func (r *Renderer) inPlaceStep(target MessageRef, content Content) fallback.Step[MessageRef] {
	return fallback.Step[MessageRef]{
		Name: "edit-in-place",
		Run: func(ctx context.Context) (MessageRef, error) {
			switch content.Kind {
			case KindText:
				if target.Mode == ModeMedia {
					return MessageRef{}, ErrIncompatibleMode
				}
				return r.edit(ctx, target, func(ctx context.Context) (MessageRef, error) {
					return r.transport.EditText(ctx, target, TruncateHTML(content.Text, MaxTextLength), content.Keyboard)
				})
			case KindCaption:
				if target.Mode == ModeText {
					return MessageRef{}, ErrIncompatibleMode
				}
				return r.edit(ctx, target, func(ctx context.Context) (MessageRef, error) {
					return r.transport.EditCaption(ctx, target, TruncateHTML(content.Text, MaxCaptionLength), content.Keyboard)
				})
			case KindMedia:
				if target.Mode == ModeText {
					return MessageRef{}, ErrIncompatibleMode
				}
				return r.edit(ctx, target, func(ctx context.Context) (MessageRef, error) {
					return r.transport.EditMedia(ctx, target, *content.Media, TruncateHTML(content.Text, MaxCaptionLength), content.Keyboard)
				})
			}
			return MessageRef{}, fallback.ErrSkipped
		},
	}
}

// swapModeStep edits the other half of a message when the first step reported a mode
// mismatch: a text update lands in the caption of a media message and vice versa.
func (r *Renderer) swapModeStep(target MessageRef, content Content) fallback.Step[MessageRef] {
	return fallback.Step[MessageRef]{
		Name: "swap-mode",
		When: func(prev error) bool { return errors.Is(prev, ErrIncompatibleMode) },
		Run: func(ctx context.Context) (MessageRef, error) {
			switch content.Kind {
			case KindText:
				if VisibleLength(content.Text) > MaxCaptionLength {
					return MessageRef{}, fallback.ErrSkipped
				}
				return r.edit(ctx, target, func(ctx context.Context) (MessageRef, error) {
					return r.transport.EditCaption(ctx, target, content.Text, content.Keyboard)
				})
			case KindCaption:
				return r.edit(ctx, target, func(ctx context.Context) (MessageRef, error) {
					return r.transport.EditText(ctx, target, content.Text, content.Keyboard)
				})
			}
			return MessageRef{}, fallback.ErrSkipped
		},
	}
}

func (r *Renderer) replaceStep(chatID int64, target MessageRef, content Content) fallback.Step[MessageRef] {
	return fallback.Step[MessageRef]{
		Name: "delete-and-send",
		Run: func(ctx context.Context) (MessageRef, error) {
			delCtx, cancel := context.WithTimeout(ctx, r.timeout)
			err := r.transport.DeleteMessage(delCtx, target)
			cancel()
			if err != nil {
				r.logger.Debug().Err(err).Int("message_id", target.MessageID).Msg("delete before resend failed")
			}
			return r.send(ctx, chatID, content)
		},
	}
}

func (r *Renderer) send(ctx context.Context, chatID int64, content Content) (MessageRef, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if content.Media != nil {
		return r.transport.SendPhoto(ctx, chatID, *content.Media, TruncateHTML(content.Text, MaxCaptionLength), content.Keyboard)
	}
	return r.transport.SendMessage(ctx, chatID, TruncateHTML(content.Text, MaxTextLength), content.Keyboard)
}

func (r *Renderer) edit(ctx context.Context, target MessageRef, call func(context.Context) (MessageRef, error)) (MessageRef, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	ref, err := call(ctx)
	if errors.Is(err, ErrNotModified) {
		return target, nil
	}
	return ref, err
}
