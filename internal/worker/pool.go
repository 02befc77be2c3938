package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"tutor-backend/internal/models"
	"tutor-backend/internal/services"
)

const defaultMaxRetries = 3

type titleApplier interface {
	ApplyTitle(ctx context.Context, job *models.TitleJob) (string, error)
}

// Pool drains the chat-title queue.
type Pool struct {
	redis       *redis.Client
	titles      titleApplier
	events      services.EventPublisher
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	titles titleApplier,
	events services.EventPublisher,
	workerCount int,
) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		redis:       redisClient,
		titles:      titles,
		events:      events,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}

	log.Printf("Started %d title worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		// BLPOP with 30s timeout
		result, err := p.redis.BLPop(ctx, 30*time.Second, services.TitleQueueKey).Result()
		if err != nil {
			continue // Timeout or error, retry
		}

		if len(result) < 2 {
			continue
		}

		var job models.TitleJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		// Try to acquire lock
		lockKey := fmt.Sprintf("job_lock:%s", job.ID)
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // Another worker has this job
		}

		log.Printf("Worker %d: processing job %s (type: %s, chat: %d)", id, job.ID, job.Type, job.ChatID)

		if err := p.process(ctx, &job); err != nil {
			p.handleFailure(ctx, &job, err)
		}

		// Release lock
		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) process(ctx context.Context, job *models.TitleJob) error {
	if job.Type != models.JobTypeChatTitle {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}

	title, err := p.titles.ApplyTitle(ctx, job)
	if err != nil {
		return err
	}

	if p.events != nil && job.Username != "" {
		err := p.events.Publish(ctx, job.Username, models.WSMessage{
			Type:    "chat_title",
			Payload: models.ChatTitleEvent{ChatID: job.ChatID, Title: title},
		})
		if err != nil {
			log.Printf("Job %s: failed to publish title event: %v", job.ID, err)
		}
	}

	log.Printf("Job %s completed: chat %d titled %q", job.ID, job.ChatID, title)
	return nil
}

// retryDelay reports the back-off before the next attempt, or false once the
// job has used up its attempts.
func retryDelay(job *models.TitleJob) (time.Duration, bool) {
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if job.RetryCount >= maxRetries {
		return 0, false
	}
	return time.Duration(1<<uint(job.RetryCount)) * time.Second, true
}

func (p *Pool) handleFailure(ctx context.Context, job *models.TitleJob, err error) {
	job.RetryCount++

	backoff, ok := retryDelay(job)
	if !ok {
		// The fallback title stays in place.
		log.Printf("Job %s failed permanently: %v", job.ID, err)
		return
	}

	log.Printf("Job %s failed (attempt %d): %v; retrying in %s", job.ID, job.RetryCount, err, backoff)

	jobBytes, _ := json.Marshal(job)
	time.AfterFunc(backoff, func() {
		p.redis.LPush(context.Background(), services.TitleQueueKey, string(jobBytes))
	})
}
