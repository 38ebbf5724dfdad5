package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps the OpenAI API for chat completions and speech synthesis.
type Client struct {
	client *openai.Client
	debug  bool
	model  string
	voice  string
}

type Config struct {
	Debug bool
	Token string
	Model string
	Voice string

	// BaseURL overrides the API endpoint in tests.
	BaseURL string
	Client  *http.Client
}

func New(cfg *Config) *Client {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceNova)
	}
	aiCfg := openai.DefaultConfig(cfg.Token)
	if cfg.BaseURL != "" {
		aiCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Client != nil {
		aiCfg.HTTPClient = cfg.Client
	}
	return &Client{
		client: openai.NewClientWithConfig(aiCfg),
		debug:  cfg.Debug,
		model:  model,
		voice:  voice,
	}
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Chat sends a system and user message pair and returns the assistant
// response text.
func (c *Client) Chat(ctx context.Context, system, user string) (string, error) {
	c.log("openai: chat %q", user)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: couldn't create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Speech synthesizes the given text and returns the mp3 payload.
func (c *Client) Speech(ctx context.Context, text string) ([]byte, error) {
	c.log("openai: speech %q", text)
	resp, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(c.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: couldn't create speech: %w", err)
	}
	defer resp.Close()
	b, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("openai: couldn't read speech response: %w", err)
	}
	return b, nil
}
