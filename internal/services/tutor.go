package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"tutor-backend/internal/models"
	"tutor-backend/internal/repository"
)

// ReplyMode selects how a new chat is titled and what the caller gets back.
type ReplyMode int

const (
	// ReplyInstant titles new chats synchronously through the title oracle.
	ReplyInstant ReplyMode = iota
	// ReplyConversation stores a prefix title and refines it in the background.
	ReplyConversation
)

const (
	defaultHintWindow  = 6
	defaultJudgeWindow = 10
	titleJobMaxRetries = 3
	maxSessionIDLength = 128
)

type TutorConfig struct {
	HintWindow  int
	JudgeWindow int
}

// SendResult is the outcome of one handled message.
type SendResult struct {
	SessionID string
	Chat      *models.Chat // Messages is filled only for ReplyConversation
	Reply     *models.Message
}

// TutorService runs the per-message sequence: resolve the chat, persist the
// turn, account time, judge, update metrics and streak, then ask for a hint.
type TutorService struct {
	users   UserRepository
	chats   ChatRepository
	titles  TitleOracle
	hints   HintOracle
	topics  TopicSource
	window  *ContextWindow
	judge   *AnswerJudge
	metrics *MetricsUpdater
	streaks *StreakTracker
	clock   *TimeAccumulator

	events    EventPublisher
	titleJobs TitleJobQueue

	hintWindow int
}

func NewTutorService(
	users UserRepository,
	chats ChatRepository,
	oracle Oracle,
	topics TopicSource,
	cfg TutorConfig,
) *TutorService {
	if cfg.HintWindow <= 0 {
		cfg.HintWindow = defaultHintWindow
	}
	if cfg.JudgeWindow <= 0 {
		cfg.JudgeWindow = defaultJudgeWindow
	}

	window := NewContextWindow(chats)
	return &TutorService{
		users:      users,
		chats:      chats,
		titles:     oracle,
		hints:      oracle,
		topics:     topics,
		window:     window,
		judge:      NewAnswerJudge(oracle, window, cfg.JudgeWindow),
		metrics:    NewMetricsUpdater(users),
		streaks:    NewStreakTracker(users),
		clock:      NewTimeAccumulator(users),
		hintWindow: cfg.HintWindow,
	}
}

// WithEvents enables live message events.
func (s *TutorService) WithEvents(p EventPublisher) *TutorService {
	s.events = p
	return s
}

// WithTitleJobs enables background titling for conversational chats.
func (s *TutorService) WithTitleJobs(q TitleJobQueue) *TutorService {
	s.titleJobs = q
	return s
}

type inbound struct {
	text      *string
	rawImage  *string
	image     *ImagePayload
	sessionID string
	seconds   float64
}

func validateSend(req models.SendMessageRequest) (*inbound, error) {
	fields := map[string]string{}
	in := &inbound{}

	// Stored as sent; whitespace only decides emptiness.
	if req.Text != nil && strings.TrimSpace(*req.Text) != "" {
		in.text = req.Text
	}

	if req.Image != nil && strings.TrimSpace(*req.Image) != "" {
		img, err := ParseImagePayload(*req.Image)
		if err != nil {
			fields["image"] = err.Error()
		} else {
			in.image = img
			in.rawImage = req.Image
		}
	}

	if in.text == nil && in.image == nil && fields["image"] == "" {
		fields["text"] = "Text or image is required"
	}

	if req.SessionID != nil {
		sid := strings.TrimSpace(*req.SessionID)
		if len(sid) > maxSessionIDLength {
			fields["session_id"] = fmt.Sprintf("Must be at most %d characters", maxSessionIDLength)
		}
		in.sessionID = sid
	}

	if req.TimeTaken != nil {
		t := *req.TimeTaken
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 {
			fields["time_taken"] = "Must be a non-negative number of seconds"
		} else {
			in.seconds = t
		}
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return in, nil
}

// SendMessage handles one inbound message for username. Judgment, metrics,
// streak and time failures are logged and absorbed; failures to resolve the
// chat, persist either message, or obtain a hint abort the request.
func (s *TutorService) SendMessage(ctx context.Context, username string, req models.SendMessageRequest, mode ReplyMode) (*SendResult, error) {
	in, err := validateSend(req)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	chat, err := s.resolveChat(ctx, user, in, mode)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ChatID: chat.ID,
		Sender: models.SenderUser,
		Text:   in.text,
		Image:  in.rawImage,
		UserID: &user.ID,
	}
	if req.TimeTaken != nil {
		userMsg.TimeTaken = &in.seconds
	}
	if err := s.chats.AddMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	s.publishMessage(ctx, username, chat, userMsg)

	if in.seconds > 0 {
		if err := s.clock.Add(ctx, user.ID, in.seconds); err != nil {
			log.Printf("tutor: user %d: time accounting failed: %v", user.ID, err)
		}
	}

	classKey := user.ClassKey()
	topics := s.classTopics(ctx, user.ID, classKey)

	if in.seconds > 0 {
		s.judgeAttempt(ctx, user.ID, chat.ID, topics)
	}

	transcript, err := s.window.Transcript(ctx, chat.ID, s.hintWindow)
	if err != nil {
		return nil, fmt.Errorf("build hint context: %w", err)
	}

	question := ""
	if in.text != nil {
		question = *in.text
	}
	hint, err := s.hints.GenerateHint(ctx, HintRequest{
		Question:       question,
		Context:        transcript,
		Image:          in.image,
		ClassKey:       classKey,
		Topics:         topics,
		ParentFeedback: user.ParentFeedback,
	})
	if err != nil {
		return nil, &OracleError{Op: "hint", Err: err}
	}

	botMsg := &models.Message{
		ChatID: chat.ID,
		Sender: models.SenderBot,
		Text:   &hint,
	}
	if err := s.chats.AddMessage(ctx, botMsg); err != nil {
		return nil, fmt.Errorf("persist bot message: %w", err)
	}
	s.publishMessage(ctx, username, chat, botMsg)

	if mode == ReplyConversation {
		msgs, err := s.chats.ListMessages(ctx, chat.ID)
		if err != nil {
			return nil, fmt.Errorf("load chat messages: %w", err)
		}
		chat.Messages = msgs
	}

	return &SendResult{SessionID: chat.SessionID, Chat: chat, Reply: botMsg}, nil
}

func (s *TutorService) resolveChat(ctx context.Context, user *models.User, in *inbound, mode ReplyMode) (*models.Chat, error) {
	sessionID := in.sessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	} else {
		chat, err := s.chats.GetBySessionID(ctx, sessionID)
		if err == nil {
			return chat, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("resolve session: %w", err)
		}
	}

	title := fallbackTitle(in.text)
	if mode == ReplyInstant && in.text != nil {
		title = s.generateTitle(ctx, user.ID, *in.text)
	}

	chat := &models.Chat{SessionID: sessionID, Title: title}
	created, err := s.chats.CreateIfAbsent(ctx, chat)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}

	if created && mode == ReplyConversation && in.text != nil && s.titleJobs != nil {
		job := &models.TitleJob{
			ID:         uuid.New().String(),
			Type:       models.JobTypeChatTitle,
			ChatID:     chat.ID,
			Username:   user.Username,
			Text:       *in.text,
			MaxRetries: titleJobMaxRetries,
			CreatedAt:  time.Now(),
		}
		if err := s.titleJobs.EnqueueTitle(ctx, job); err != nil {
			log.Printf("tutor: chat %d: failed to enqueue title job: %v", chat.ID, err)
		}
	}

	return chat, nil
}

func (s *TutorService) generateTitle(ctx context.Context, userID int64, text string) string {
	title, err := s.titles.Title(ctx, text)
	if err != nil || strings.TrimSpace(title) == "" {
		if err != nil {
			log.Printf("tutor: user %d: %v", userID, &OracleError{Op: "title", Err: err})
		}
		return fallbackTitle(&text)
	}
	return title
}

func (s *TutorService) classTopics(ctx context.Context, userID int64, classKey string) models.ClassTopics {
	if s.topics == nil {
		return nil
	}
	topics, err := s.topics.ForClass(ctx, classKey)
	if err != nil {
		log.Printf("tutor: user %d: topics for %s unavailable: %v", userID, classKey, err)
		return nil
	}
	return topics
}

// judgeAttempt runs the judge, metrics and streak chain. Any failure stops
// the chain and is only logged.
func (s *TutorService) judgeAttempt(ctx context.Context, userID, chatID int64, topics models.ClassTopics) {
	verdict := s.judge.Judge(ctx, userID, chatID, topics)
	if verdict == nil || !verdict.Final {
		return
	}

	if err := s.metrics.Apply(ctx, userID, verdict.Correct); err != nil {
		log.Printf("tutor: user %d: metrics update failed: %v", userID, err)
		return
	}

	if _, _, err := s.streaks.Record(ctx, userID, verdict.Correct); err != nil {
		log.Printf("tutor: user %d: streak update failed: %v", userID, err)
	}
}

func (s *TutorService) publishMessage(ctx context.Context, username string, chat *models.Chat, m *models.Message) {
	if s.events == nil {
		return
	}
	text := ""
	if m.Text != nil {
		text = *m.Text
	}
	err := s.events.Publish(ctx, username, models.WSMessage{
		Type: "message_created",
		Payload: models.MessageCreatedEvent{
			ChatID:    chat.ID,
			SessionID: chat.SessionID,
			MessageID: m.ID,
			Sender:    m.Sender,
			Text:      text,
		},
	})
	if err != nil {
		log.Printf("tutor: chat %d: failed to publish event: %v", chat.ID, err)
	}
}

// ChatsForUser lists chats the user wrote in, newest first.
func (s *TutorService) ChatsForUser(ctx context.Context, username string) ([]*models.Chat, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return nil, err
	}
	return s.chats.ListByAuthor(ctx, user.ID)
}

func (s *TutorService) ChatsForSession(ctx context.Context, sessionID string) ([]*models.Chat, error) {
	chats, err := s.chats.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(chats) == 0 {
		return nil, &NotFoundError{Message: "No chats found for this session"}
	}
	return chats, nil
}

// Progress returns the user's metrics snapshot.
func (s *TutorService) Progress(ctx context.Context, username string) (*models.ProgressResponse, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return nil, err
	}

	m := user.Metrics
	return &models.ProgressResponse{
		Username:         user.Username,
		TotalAttempts:    m.TotalAttempts,
		CorrectAttempts:  m.CorrectAttempts,
		Accuracy:         m.Accuracy(),
		Score:            m.Score,
		CurrentStreak:    m.CurrentStreak,
		MaxStreak:        m.MaxStreak,
		MinutesPracticed: m.TotalTimeTaken,
	}, nil
}

// ClassKey returns the syllabus key of username's class.
func (s *TutorService) ClassKey(ctx context.Context, username string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return "", &NotFoundError{Message: "User not found"}
	}
	if err != nil {
		return "", err
	}
	return user.ClassKey(), nil
}

// ApplyTitle replaces a chat's placeholder title. Used by the title worker.
func (s *TutorService) ApplyTitle(ctx context.Context, job *models.TitleJob) (string, error) {
	title, err := s.titles.Title(ctx, job.Text)
	if err != nil {
		return "", &OracleError{Op: "title", Err: err}
	}
	if err := s.chats.UpdateTitle(ctx, job.ChatID, title); err != nil {
		return "", fmt.Errorf("update chat title: %w", err)
	}
	return title, nil
}
