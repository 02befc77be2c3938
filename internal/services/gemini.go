package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"tutor-backend/internal/models"
)

// GeminiService serves title, hint and judge calls from Gemini.
type GeminiService struct {
	client     *genai.Client
	model      *genai.GenerativeModel
	judgeModel *genai.GenerativeModel
	gate       *oracleGate
}

func NewGeminiService(apiKey, modelName string, requestsPerMin, concurrentReqs int) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.3)
	model.SetTopP(0.95)

	// Judge replies must be machine readable.
	judge := client.GenerativeModel(modelName)
	judge.SetTemperature(0)
	judge.ResponseMIMEType = "application/json"

	return &GeminiService{
		client:     client,
		model:      model,
		judgeModel: judge,
		gate:       newOracleGate(requestsPerMin, concurrentReqs),
	}, nil
}

func (s *GeminiService) Close() {
	s.client.Close()
}

func (s *GeminiService) Title(ctx context.Context, text string) (string, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return "", err
	}
	defer s.gate.release()

	resp, err := s.model.GenerateContent(ctx, genai.Text(buildTitlePrompt(text)))
	if err != nil {
		return "", fmt.Errorf("Gemini title error: %w", err)
	}

	title := cleanTitle(extractText(resp))
	if title == "" {
		return "", fmt.Errorf("Gemini returned empty title")
	}
	return title, nil
}

func (s *GeminiService) GenerateHint(ctx context.Context, req HintRequest) (string, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return "", err
	}
	defer s.gate.release()

	parts := []genai.Part{genai.Text(buildHintPrompt(req))}
	if req.Image != nil {
		parts = append(parts, genai.ImageData(imageFormat(req.Image.MIMEType), req.Image.Data))
	}

	resp, err := s.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("Gemini hint error: %w", err)
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return "", fmt.Errorf("Gemini returned empty hint")
	}
	return text, nil
}

func (s *GeminiService) CheckAnswer(ctx context.Context, conversation []models.ChatMessage, topics models.ClassTopics) (*Verdict, error) {
	if err := s.gate.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.release()

	resp, err := s.judgeModel.GenerateContent(ctx, genai.Text(buildJudgePrompt(conversation, topics)))
	if err != nil {
		return nil, fmt.Errorf("Gemini judge error: %w", err)
	}
	return parseVerdict(extractText(resp))
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// imageFormat turns "image/png" into "png" as genai.ImageData expects.
func imageFormat(mimeType string) string {
	if i := strings.Index(mimeType, "/"); i >= 0 {
		return mimeType[i+1:]
	}
	if mimeType == "" {
		return "jpeg"
	}
	return mimeType
}
