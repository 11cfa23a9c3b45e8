package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"cardforge-backend/internal/engine"
	"cardforge-backend/internal/models"
	"cardforge-backend/internal/repository"
	"cardforge-backend/internal/services"
)

const (
	deckQueue = "queue:deck-generation"
	noteQueue = "queue:note-generation"
)

// jobError carries the machine-readable code stored on the job row, plus
// whether requeueing can help. Input- and config-class failures are final;
// everything else gets bounded retries.
type jobError struct {
	code      string
	message   string
	retryable bool
}

func (e *jobError) Error() string { return fmt.Sprintf("%s: %s", e.code, e.message) }

type Pool struct {
	redis       *redis.Client
	generator   *engine.Generator
	llmLive     func() bool
	extract     *services.ExtractService
	deckRepo    *repository.DeckRepo
	noteRepo    *repository.NoteRepo
	jobRepo     *repository.JobRepo
	workerCount int
	stopChan    chan struct{}
}

func NewPool(
	redisClient *redis.Client,
	generator *engine.Generator,
	llmLive func() bool,
	extract *services.ExtractService,
	deckRepo *repository.DeckRepo,
	noteRepo *repository.NoteRepo,
	jobRepo *repository.JobRepo,
	workerCount int,
) *Pool {
	return &Pool{
		redis:       redisClient,
		generator:   generator,
		llmLive:     llmLive,
		extract:     extract,
		deckRepo:    deckRepo,
		noteRepo:    noteRepo,
		jobRepo:     jobRepo,
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
	}
}

func (p *Pool) Start() {
	queues := []string{deckQueue, noteQueue}
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i, queues)
	}
	log.Printf("Started %d worker goroutines", p.workerCount)
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int, queues []string) {
	for {
		select {
		case <-p.stopChan:
			log.Printf("Worker %d shutting down", id)
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, 30*time.Second, queues...).Result()
		if err != nil {
			continue // timeout or transient redis error
		}
		if len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("Worker %d: failed to parse job: %v", id, err)
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			continue // another worker has this job
		}

		log.Printf("Worker %d: processing job %s (type: %s)", id, job.ID, job.Type)
		p.jobRepo.UpdateStatus(ctx, job.ID, "processing")
		p.publishUpdate(ctx, job.UserID, models.WSMessage{
			Type: "status_update",
			Payload: models.StatusUpdate{
				JobID:    job.ID,
				Step:     1,
				StepName: "Extracting source",
			},
		})

		var processErr error
		switch job.Type {
		case "deck-generation":
			processErr = p.processDeck(ctx, &job)
		case "note-generation":
			processErr = p.processNote(ctx, &job)
		default:
			processErr = &jobError{code: "INTERNAL", message: "unknown job type: " + job.Type}
		}

		if processErr != nil {
			p.handleFailure(ctx, &job, processErr)
		} else {
			p.handleSuccess(ctx, &job)
		}

		p.redis.Del(ctx, lockKey)
	}
}

// processDeck runs the ingestion pipeline for one deck: extract, generate,
// persist. Strictly sequential — generation depends on extraction's output.
func (p *Pool) processDeck(ctx context.Context, job *models.Job) error {
	var sub models.Submission
	if err := json.Unmarshal(job.ConfigJSON, &sub); err != nil {
		return &jobError{code: "INTERNAL", message: "malformed job config: " + err.Error()}
	}

	material, err := p.extract.Extract(ctx, sub)
	if err != nil {
		return classifyPipelineError(err)
	}
	if material.Text == "" {
		return &jobError{code: "NO_TEXT_EXTRACTED", message: "no usable text could be extracted from the source"}
	}

	p.publishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:                     job.ID,
			Step:                      2,
			StepName:                  "Generating cards",
			EstimatedSecondsRemaining: 45,
		},
	})

	var cards []engine.Card
	source := models.DeckSourceAI
	if p.llmLive() {
		cards, err = p.generator.Generate(ctx, material.Text, sub.NumCards)
		if err != nil {
			return classifyPipelineError(err)
		}
	} else {
		// Deliberate non-AI degradation, tagged so consumers can tell.
		source = models.DeckSourceChunked
		cards = engine.ChunkCards(material.Text, sub.NumCards)
		if len(cards) == 0 {
			return &jobError{code: "NO_TEXT_EXTRACTED", message: "source text was too thin to chunk into cards"}
		}
	}

	if err := p.deckRepo.UpdateGeneration(ctx, job.ReferenceID, material.OriginKind, source, material.Text); err != nil {
		return &jobError{code: "INTERNAL", message: "failed to store deck: " + err.Error(), retryable: true}
	}

	deckCards := make([]models.Card, len(cards))
	for i, c := range cards {
		deckCards[i] = models.Card{Question: c.Question, Answer: c.Answer}
	}
	if err := p.deckRepo.CreateCards(ctx, job.ReferenceID, deckCards); err != nil {
		return &jobError{code: "INTERNAL", message: "failed to store cards: " + err.Error(), retryable: true}
	}
	return nil
}

func (p *Pool) processNote(ctx context.Context, job *models.Job) error {
	var sub models.Submission
	if err := json.Unmarshal(job.ConfigJSON, &sub); err != nil {
		return &jobError{code: "INTERNAL", message: "malformed job config: " + err.Error()}
	}

	material, err := p.extract.Extract(ctx, sub)
	if err != nil {
		return classifyPipelineError(err)
	}
	if material.Text == "" {
		return &jobError{code: "NO_TEXT_EXTRACTED", message: "no usable text could be extracted from the source"}
	}

	p.publishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "status_update",
		Payload: models.StatusUpdate{
			JobID:                     job.ID,
			Step:                      2,
			StepName:                  "Writing note",
			EstimatedSecondsRemaining: 30,
		},
	})

	note, err := p.generator.GenerateNote(ctx, material.Text)
	if err != nil {
		return classifyPipelineError(err)
	}

	wordCount := len(strings.Fields(note))
	if err := p.noteRepo.UpdateContent(ctx, job.ReferenceID, material.OriginKind, note, wordCount, material.Text); err != nil {
		return &jobError{code: "INTERNAL", message: "failed to store note: " + err.Error(), retryable: true}
	}
	return nil
}

// classifyPipelineError folds extractor and engine failures into job codes.
func classifyPipelineError(err error) *jobError {
	var ee *services.ExtractError
	if errors.As(err, &ee) {
		// YT_NO_CAPTIONS and friends are properties of the input, not of
		// the moment; retrying cannot help.
		return &jobError{code: ee.Code, message: ee.Message}
	}

	var ge *engine.GenerationError
	if errors.As(err, &ge) {
		msg := ge.Message
		if ge.Preview != "" {
			msg += " (output preview: " + ge.Preview + ")"
		}
		switch ge.Code {
		case engine.CodeNotConfigured:
			return &jobError{code: ge.Code, message: msg}
		default:
			return &jobError{code: ge.Code, message: msg, retryable: true}
		}
	}

	return &jobError{code: "INTERNAL", message: err.Error(), retryable: true}
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job) {
	p.jobRepo.UpdateStatus(ctx, job.ID, "completed")

	p.publishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "completed",
		Payload: models.CompletedEvent{
			JobID:      job.ID,
			ResultID:   job.ReferenceID,
			ResultType: resultType(job.Type),
		},
	})

	log.Printf("Job %s completed successfully", job.ID)
}

func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++

	var je *jobError
	if !errors.As(err, &je) {
		je = &jobError{code: "INTERNAL", message: err.Error(), retryable: true}
	}

	if je.retryable && job.RetryCount < job.MaxRetries {
		log.Printf("Job %s failed (attempt %d): %s — retrying", job.ID, job.RetryCount, je.message)
		p.jobRepo.UpdateStatus(ctx, job.ID, "pending")
		p.jobRepo.UpdateError(ctx, job.ID, je.code, je.message, job.RetryCount)

		jobBytes, _ := json.Marshal(job)
		backoff := time.Duration(1<<uint(job.RetryCount)) * time.Second
		time.AfterFunc(backoff, func() {
			p.redis.LPush(context.Background(), "queue:"+job.Type, string(jobBytes))
		})
		return
	}

	log.Printf("Job %s failed permanently [%s]: %s", job.ID, je.code, je.message)
	p.jobRepo.UpdateStatus(ctx, job.ID, "failed")
	p.jobRepo.UpdateError(ctx, job.ID, je.code, je.message, job.RetryCount)

	p.publishUpdate(ctx, job.UserID, models.WSMessage{
		Type: "error",
		Payload: models.ErrorEvent{
			JobID:        job.ID,
			ErrorCode:    je.code,
			ErrorMessage: je.message,
		},
	})
}

// publishUpdate fans a job event out to the user's WebSocket connections via
// redis pub/sub; the hub subscribes per user.
func (p *Pool) publishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, _ := json.Marshal(msg)
	p.redis.Publish(ctx, "user_updates:"+userID.String(), string(data))
}

func resultType(jobType string) string {
	switch jobType {
	case "deck-generation":
		return "deck"
	case "note-generation":
		return "note"
	default:
		return jobType
	}
}
