package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"signal-relay/internal/domain"
	"signal-relay/internal/signal"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultOpenAIModel = "gpt-4o-mini"

const sentimentPrompt = `You are a market analyst writing for a Telegram trading channel.
Reply in Telegram HTML (only <b> and <i> tags). Structure:
<b>Overall Sentiment:</b> Bullish, Bearish or Neutral with a short reason.
<b>Key Drivers:</b> two or three bullet points starting with "• ".
<b>Outlook:</b> one sentence.
Keep it under 900 characters. Do not give financial advice disclaimers.`

const technicalPrompt = `You are a technical analyst writing a caption for a chart image in a Telegram
trading channel. Reply in Telegram HTML (only <b> and <i> tags). Cover trend, key support and
resistance zones and momentum in at most five short lines starting with "• ". Keep it under
800 characters.`

type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

type openAICompleter struct {
	client openai.Client
	model  string
}

func (c *openAICompleter) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// Analyst produces sentiment and technical commentary from a chat-completion model.
type Analyst struct {
	tracer trace.Tracer
	llm    completer
}

func NewAnalyst(tracer trace.Tracer, apiKey, model string) *Analyst {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &Analyst{
		tracer: tracer,
		llm: &openAICompleter{
			client: openai.NewClient(option.WithAPIKey(apiKey)),
			model:  model,
		},
	}
}

func (a *Analyst) Sentiment(ctx context.Context, instrument string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "analyst.sentiment", trace.WithAttributes(
		attribute.String("instrument", instrument),
	))
	defer span.End()

	prompt := fmt.Sprintf("Give the current market sentiment for %s (%s market).",
		instrument, signal.Classify(instrument))
	out, err := a.ask(ctx, sentimentPrompt, prompt)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("sentiment %s: %w", instrument, err)
	}
	return out, nil
}

func (a *Analyst) TechnicalSummary(ctx context.Context, instrument string, tf domain.Timeframe) (string, error) {
	ctx, span := a.tracer.Start(ctx, "analyst.technical-summary", trace.WithAttributes(
		attribute.String("instrument", instrument),
		attribute.String("timeframe", tf.String()),
	))
	defer span.End()

	prompt := fmt.Sprintf("Summarize the technical picture for %s on the %s chart.", instrument, tf.Display())
	out, err := a.ask(ctx, technicalPrompt, prompt)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("technical summary %s %s: %w", instrument, tf, err)
	}
	return out, nil
}

func (a *Analyst) ask(ctx context.Context, system, user string) (string, error) {
	out, err := a.llm.complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrProviderUnavailable)
	}
	return out, nil
}
