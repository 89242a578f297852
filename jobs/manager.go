package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"

	"github.com/edustack/practice-api/db"
	"github.com/edustack/practice-api/quiz"
	"github.com/edustack/practice-api/utils"
)

const (
	TypeMasteryRecompute = "mastery:recompute"
)

// Entries older than this that are still pending get re-enqueued by the
// reconciliation sweep.
const staleOutboxAge = 15 * time.Minute

// JobManager owns the async side of mastery updates: a queue for
// post-commit recompute tasks and a cron sweep that re-enqueues outbox
// entries a failed worker left behind.
type JobManager struct {
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	cron     *cron.Cron
	database *db.DB
	sessions *quiz.SessionService
}

// MasteryRecomputePayload carries one outbox entry through the queue.
type MasteryRecomputePayload struct {
	OutboxID      int64   `json:"outbox_id"`
	QuizSessionID int64   `json:"quiz_session_id"`
	UserID        int64   `json:"user_id"`
	ObjectiveCode string  `json:"objective_code"`
	Average       float64 `json:"average"`
}

func NewJobManager(redisURL string, database *db.DB) *JobManager {
	addr := strings.TrimPrefix(redisURL, "redis://")
	redisOpt := asynq.RedisClientOpt{
		Addr: addr,
	}

	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			"default": 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			utils.LogError("Job failed: type=%s error=%v", task.Type(), err)
		}),
		Logger: &AsynqLogger{},
	})

	mux := asynq.NewServeMux()

	return &JobManager{
		client:   client,
		server:   server,
		mux:      mux,
		cron:     cron.New(),
		database: database,
	}
}

func (jm *JobManager) RegisterHandlers(sessions *quiz.SessionService) {
	jm.sessions = sessions
	jm.mux.HandleFunc(TypeMasteryRecompute, jm.handleMasteryRecompute)
}

func (jm *JobManager) Start() error {
	utils.LogStartup("Starting job queue worker...")

	// Reconciliation sweep: catch outbox entries whose recompute failed or
	// never ran, so a submitted quiz with stale mastery eventually heals.
	if _, err := jm.cron.AddFunc("@every 10m", jm.sweepStaleOutbox); err != nil {
		return fmt.Errorf("failed to schedule outbox sweep: %w", err)
	}
	jm.cron.Start()

	return jm.server.Run(jm.mux)
}

func (jm *JobManager) Stop() {
	utils.LogShutdown("Stopping job queue...")
	ctx := jm.cron.Stop()
	<-ctx.Done()
	jm.server.Stop()
	jm.server.Shutdown()
	jm.client.Close()
}

// DispatchMasteryRecompute enqueues one committed outbox entry. Implements
// quiz.MasteryDispatcher.
func (jm *JobManager) DispatchMasteryRecompute(entry db.OutboxEntry) error {
	payload := MasteryRecomputePayload{
		OutboxID:      entry.ID,
		QuizSessionID: entry.QuizSessionID,
		UserID:        entry.UserID,
		ObjectiveCode: entry.ObjectiveCode,
		Average:       entry.Average,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mastery payload: %w", err)
	}

	task := asynq.NewTask(TypeMasteryRecompute, payloadBytes)

	info, err := jm.client.Enqueue(task,
		asynq.Queue("default"),
		asynq.MaxRetry(3),
		asynq.Timeout(60*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue mastery recompute: %w", err)
	}

	utils.LogJob("Queued mastery recompute: ID=%s session=%d objective=%s",
		info.ID, entry.QuizSessionID, entry.ObjectiveCode)
	return nil
}

func (jm *JobManager) handleMasteryRecompute(ctx context.Context, task *asynq.Task) error {
	var payload MasteryRecomputePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal mastery payload: %w", err)
	}

	utils.LogJob("Processing mastery recompute: session=%d objective=%s average=%.2f",
		payload.QuizSessionID, payload.ObjectiveCode, payload.Average)

	entry, err := jm.database.GetOutboxEntry(payload.OutboxID)
	if err != nil {
		return fmt.Errorf("failed to load outbox entry %d: %w", payload.OutboxID, err)
	}
	if entry.Status == "applied" {
		utils.LogJob("Outbox entry %d already applied, skipping", entry.ID)
		return nil
	}

	if err := jm.sessions.ApplyOutboxEntry(*entry); err != nil {
		return fmt.Errorf("mastery recompute failed for outbox %d (objective %s): %w",
			entry.ID, entry.ObjectiveCode, err)
	}

	utils.LogJob("Applied mastery recompute for outbox %d (objective %s)", entry.ID, entry.ObjectiveCode)
	return nil
}

// sweepStaleOutbox re-enqueues pending entries that have sat unapplied
// past the stale cutoff.
func (jm *JobManager) sweepStaleOutbox() {
	cutoff := time.Now().Add(-staleOutboxAge)

	entries, err := jm.database.ListStaleOutboxEntries(cutoff, 100)
	if err != nil {
		utils.LogError("Outbox sweep failed: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	utils.LogJob("Outbox sweep found %d stale entries", len(entries))
	for _, entry := range entries {
		if err := jm.DispatchMasteryRecompute(entry); err != nil {
			utils.LogError("Failed to re-enqueue outbox entry %d: %v", entry.ID, err)
		}
	}
}

// Custom logger that routes asynq's output through the tagged log helpers.
type AsynqLogger struct{}

func (l *AsynqLogger) Debug(args ...interface{}) {
	utils.LogDebug(fmt.Sprint(args...))
}

func (l *AsynqLogger) Info(args ...interface{}) {
	utils.LogInfo(fmt.Sprint(args...))
}

func (l *AsynqLogger) Warn(args ...interface{}) {
	utils.LogError(fmt.Sprint(args...))
}

func (l *AsynqLogger) Error(args ...interface{}) {
	utils.LogError(fmt.Sprint(args...))
}

func (l *AsynqLogger) Fatal(args ...interface{}) {
	utils.LogError(fmt.Sprint(args...))
}
