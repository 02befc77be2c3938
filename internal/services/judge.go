package services

import (
	"context"
	"errors"
	"log"

	"tutor-backend/internal/models"
)

// AnswerJudge asks the judgment oracle about the latest turn of a chat.
type AnswerJudge struct {
	oracle JudgeOracle
	window *ContextWindow
	size   int
}

func NewAnswerJudge(oracle JudgeOracle, window *ContextWindow, size int) *AnswerJudge {
	if size <= 0 {
		size = 10
	}
	return &AnswerJudge{oracle: oracle, window: window, size: size}
}

// Judge returns nil when there is no usable verdict. Failures are logged,
// never returned.
func (j *AnswerJudge) Judge(ctx context.Context, userID, chatID int64, topics models.ClassTopics) *Verdict {
	conversation, err := j.window.Conversation(ctx, chatID, j.size)
	if err != nil {
		log.Printf("judge: user %d chat %d: building context failed: %v", userID, chatID, err)
		return nil
	}
	if len(conversation) == 0 {
		return nil
	}

	verdict, err := j.oracle.CheckAnswer(ctx, conversation, topics)
	if err != nil {
		if errors.Is(err, ErrUnstructuredVerdict) {
			log.Printf("judge: user %d chat %d: unstructured verdict, skipping metrics", userID, chatID)
		} else {
			log.Printf("judge: user %d chat %d: %v", userID, chatID, &OracleError{Op: "judge", Err: err})
		}
		return nil
	}
	return verdict
}
