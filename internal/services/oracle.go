package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"tutor-backend/internal/models"
)

// TitleOracle summarizes a first message into a chat title.
type TitleOracle interface {
	Title(ctx context.Context, text string) (string, error)
}

// HintOracle produces the tutor's next reply.
type HintOracle interface {
	GenerateHint(ctx context.Context, req HintRequest) (string, error)
}

// JudgeOracle decides whether the latest student turn is a final answer and
// whether it is correct.
type JudgeOracle interface {
	CheckAnswer(ctx context.Context, conversation []models.ChatMessage, topics models.ClassTopics) (*Verdict, error)
}

// Oracle is one provider serving all three capabilities.
type Oracle interface {
	TitleOracle
	HintOracle
	JudgeOracle
	Close()
}

type HintRequest struct {
	Question       string
	Context        string // role-tagged transcript, oldest first
	Image          *ImagePayload
	ClassKey       string
	Topics         models.ClassTopics // may be nil
	ParentFeedback *string
}

type ImagePayload struct {
	MIMEType string
	Data     []byte
}

type Verdict struct {
	Final   bool `json:"final"`
	Correct bool `json:"correct"`
}

// ErrUnstructuredVerdict means the judge answered but not with a usable verdict.
var ErrUnstructuredVerdict = errors.New("judge returned no structured verdict")

const (
	fallbackTitleRunes = 20
	imageChatTitle     = "Image Chat"
	maxTitleLength     = 100
)

// ParseImagePayload accepts raw base64 or a data URL ("data:image/png;base64,....").
func ParseImagePayload(raw string) (*ImagePayload, error) {
	mimeType := "image/jpeg"
	data := strings.TrimSpace(raw)
	if strings.HasPrefix(data, "data:") {
		comma := strings.Index(data, ",")
		if comma < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		header := data[len("data:"):comma]
		if semi := strings.Index(header, ";"); semi >= 0 {
			header = header[:semi]
		}
		if header != "" {
			mimeType = header
		}
		data = data[comma+1:]
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if len(decoded) == 0 {
		return nil, fmt.Errorf("image payload is empty")
	}
	return &ImagePayload{MIMEType: mimeType, Data: decoded}, nil
}

// fallbackTitle is used whenever the title oracle is unavailable.
func fallbackTitle(text *string) string {
	if text == nil || strings.TrimSpace(*text) == "" {
		return imageChatTitle
	}
	runes := []rune(strings.TrimSpace(*text))
	if len(runes) > fallbackTitleRunes {
		runes = runes[:fallbackTitleRunes]
	}
	return string(runes)
}

func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, "\"'")
	title = strings.TrimSpace(title)
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	return title
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseVerdict extracts {"final": bool, "correct": bool} from a model reply.
// Both keys must be present booleans.
func parseVerdict(raw string) (*Verdict, error) {
	text := stripCodeFence(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrUnstructuredVerdict
	}

	var v struct {
		Final   *bool `json:"final"`
		Correct *bool `json:"correct"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return nil, ErrUnstructuredVerdict
	}
	if v.Final == nil || v.Correct == nil {
		return nil, ErrUnstructuredVerdict
	}
	return &Verdict{Final: *v.Final, Correct: *v.Correct}, nil
}

func buildTitlePrompt(text string) string {
	return "Write a short title (3-6 words) for a tutoring chat that starts with the student message below. " +
		"Return only the title, no quotes or punctuation at the end.\n\nMessage:\n" + text
}

func buildHintPrompt(req HintRequest) string {
	var b strings.Builder

	b.WriteString("You are a patient tutor for a school student. Guide the student toward the answer with one hint at a time. ")
	b.WriteString("Reveal a little more with each turn, never the full solution at once. If the student gives a final answer, say whether it is right and explain briefly.\n\n")

	if req.ClassKey != "" {
		b.WriteString(fmt.Sprintf("Student level: %s. Keep language and methods appropriate for this level.\n", strings.ReplaceAll(req.ClassKey, "_", " ")))
	}
	if len(req.Topics) > 0 {
		b.WriteString("Syllabus topics for this class:\n")
		b.WriteString(renderTopics(req.Topics))
	}
	if req.ParentFeedback != nil && strings.TrimSpace(*req.ParentFeedback) != "" {
		b.WriteString("Parent notes about the student: " + strings.TrimSpace(*req.ParentFeedback) + "\n")
	}
	if req.Context != "" {
		b.WriteString("\n---CONVERSATION---\n")
		b.WriteString(req.Context)
		b.WriteString("\n---END---\n")
	}
	if req.Image != nil {
		b.WriteString("\nThe student attached an image of the problem.\n")
	}
	b.WriteString("\nStudent: ")
	b.WriteString(req.Question)
	b.WriteString("\nTutor:")

	return b.String()
}

func buildJudgePrompt(conversation []models.ChatMessage, topics models.ClassTopics) string {
	var b strings.Builder

	b.WriteString("You review a tutoring conversation. Decide whether the student's latest message is a final answer to an exercise ")
	b.WriteString("(not a question, greeting or partial step), and if so whether it is correct.\n")
	b.WriteString(`CRITICAL: Return ONLY a JSON object: {"final": true|false, "correct": true|false}` + "\n\n")

	if len(topics) > 0 {
		b.WriteString("Syllabus topics:\n")
		b.WriteString(renderTopics(topics))
		b.WriteString("\n")
	}

	b.WriteString("---CONVERSATION---\n")
	for _, m := range conversation {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("---END---\n")

	return b.String()
}

func renderTopics(topics models.ClassTopics) string {
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString("- " + name)
		if subs := topics[name]; len(subs) > 0 {
			b.WriteString(": " + strings.Join(subs, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// oracleGate bounds provider traffic: a requests-per-minute token bucket and
// a fixed number of in-flight calls.
type oracleGate struct {
	limiter *rate.Limiter
	slots   chan struct{}
}

func newOracleGate(requestsPerMin, concurrent int) *oracleGate {
	if requestsPerMin <= 0 {
		requestsPerMin = 60
	}
	if concurrent <= 0 {
		concurrent = 1
	}
	return &oracleGate{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMin)), concurrent),
		slots:   make(chan struct{}, concurrent),
	}
}

func (g *oracleGate) acquire(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limit: %w", err)
	}
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *oracleGate) release() {
	<-g.slots
}
