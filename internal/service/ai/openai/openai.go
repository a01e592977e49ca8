// Package openai implements the batch analyzer and the streaming answerer on
// top of the OpenAI API: Whisper transcribes the turn, a JSON-mode chat
// completion classifies it and drafts the answer.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"

	"interview-copilot-service/internal/service/ai"
)

// Config holds OpenAI client settings.
type Config struct {
	APIKey             string
	BaseURL            string // optional, e.g. an Azure or local proxy endpoint
	ChatModel          string
	TranscriptionModel string
	LanguageCode       string // BCP-47, e.g. "en-US"
	Instructions       string // system prompt including the candidate profile
}

// DefaultConfig returns default model settings. The API key must be set.
func DefaultConfig() Config {
	return Config{
		ChatModel:          goopenai.GPT4oMini,
		TranscriptionModel: goopenai.Whisper1,
		LanguageCode:       "en-US",
		Instructions:       ai.DefaultSystemPrompt,
	}
}

// Client implements ai.Analyzer and ai.Answerer.
type Client struct {
	api *goopenai.Client
	cfg Config
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	def := DefaultConfig()
	if cfg.ChatModel == "" {
		cfg.ChatModel = def.ChatModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = def.TranscriptionModel
	}
	if cfg.Instructions == "" {
		cfg.Instructions = def.Instructions
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Client{api: goopenai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

const analysisPrompt = `The interviewer said (verbatim transcript):
%q

Reply with a JSON object {"question": string, "answer": string}.
"question" is the interviewer's question, cleaned up. "answer" is what the candidate should say.
If the transcript holds no question, reply {"question": "NO_QUESTION", "answer": ""}.`

// AnalyzeAudioTurn transcribes the audio and asks the chat model for an answer.
func (c *Client) AnalyzeAudioTurn(ctx context.Context, data []byte, mimeType string, history []ai.Exchange) (ai.Analysis, error) {
	text, err := c.transcribe(ctx, data, mimeType)
	if err != nil {
		return ai.Analysis{}, err
	}
	if strings.TrimSpace(text) == "" {
		log.Debug().Msg("Empty transcription, no question")
		return ai.Analysis{Question: ai.NoQuestion}, nil
	}

	msgs := c.messages(history, fmt.Sprintf(analysisPrompt, text))
	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:    c.cfg.ChatModel,
		Messages: msgs,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return ai.Analysis{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ai.Analysis{}, fmt.Errorf("%w: no choices", ai.ErrMalformedResponse)
	}
	return ParseAnalysis(resp.Choices[0].Message.Content)
}

// StreamAnswer streams a chat completion for the question.
func (c *Client) StreamAnswer(ctx context.Context, question string, history []ai.Exchange, onDelta func(string)) error {
	stream, err := c.api.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
		Model:    c.cfg.ChatModel,
		Messages: c.messages(history, question),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("chat stream: %w", err)
	}
	defer stream.Close()

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("chat stream recv: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if chunk := resp.Choices[0].Delta.Content; chunk != "" {
			onDelta(chunk)
		}
	}
}

func (c *Client) transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	resp, err := c.api.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: "turn" + extension(mimeType),
		Reader:   bytes.NewReader(data),
		Language: language(c.cfg.LanguageCode),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}

func (c *Client) messages(history []ai.Exchange, user string) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, 2+2*len(history))
	msgs = append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: c.cfg.Instructions,
	})
	for _, ex := range history {
		msgs = append(msgs,
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: ex.Question},
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: ex.Answer},
		)
	}
	return append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: user})
}

// ParseAnalysis decodes a {"question","answer"} object. Markdown code fences
// around the object are tolerated.
func ParseAnalysis(content string) (ai.Analysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var a ai.Analysis
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return ai.Analysis{}, fmt.Errorf("%w: %v", ai.ErrMalformedResponse, err)
	}
	if err := a.Validate(); err != nil {
		return ai.Analysis{}, err
	}
	return a, nil
}

func extension(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ".wav"
	}
}

// language reduces "en-US" to the ISO-639-1 code Whisper expects.
func language(code string) string {
	if i := strings.IndexByte(code, '-'); i > 0 {
		code = code[:i]
	}
	return strings.ToLower(code)
}
