package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"tutor-backend/internal/models"
)

// OpenAIService serves the oracles from any OpenAI-compatible endpoint.
type OpenAIService struct {
	client *openai.Client
	model  string
	gate   *oracleGate
}

func NewOpenAIService(apiKey, baseURL, model string, requestsPerMin, concurrentReqs int) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		gate:   newOracleGate(requestsPerMin, concurrentReqs),
	}
}

func (s *OpenAIService) Close() {}

func (s *OpenAIService) Title(ctx context.Context, text string) (string, error) {
	reply, err := s.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: buildTitlePrompt(text)},
	}, 0.3)
	if err != nil {
		return "", fmt.Errorf("OpenAI title error: %w", err)
	}

	title := cleanTitle(reply)
	if title == "" {
		return "", fmt.Errorf("OpenAI returned empty title")
	}
	return title, nil
}

func (s *OpenAIService) GenerateHint(ctx context.Context, req HintRequest) (string, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	prompt := buildHintPrompt(req)

	if req.Image == nil {
		msg.Content = prompt
	} else {
		dataURL := fmt.Sprintf("data:%s;base64,%s", req.Image.MIMEType, base64.StdEncoding.EncodeToString(req.Image.Data))
		msg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailAuto,
				},
			},
		}
	}

	reply, err := s.complete(ctx, []openai.ChatCompletionMessage{msg}, 0.3)
	if err != nil {
		return "", fmt.Errorf("OpenAI hint error: %w", err)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("OpenAI returned empty hint")
	}
	return reply, nil
}

func (s *OpenAIService) CheckAnswer(ctx context.Context, conversation []models.ChatMessage, topics models.ClassTopics) (*Verdict, error) {
	reply, err := s.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: buildJudgePrompt(conversation, topics)},
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("OpenAI judge error: %w", err)
	}
	return parseVerdict(reply)
}

func (s *OpenAIService) complete(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float32) (string, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return "", err
	}
	defer s.gate.release()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
