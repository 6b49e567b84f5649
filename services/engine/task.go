package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	tasks "incentive-controlplane/pkg/asynq"
	"incentive-controlplane/services/challenge"
)

// TaskHandler runs the engine's background sweeps off asynq. Task time is
// sampled at the queue boundary and handed to the engine as its clock
// input, so the command path itself stays caller-clocked.
type TaskHandler struct {
	engine *Service
}

func NewTaskHandler(svc *Service) *TaskHandler {
	return &TaskHandler{engine: svc}
}

// RegisterHandlers binds the engine tasks onto the asynq mux.
func RegisterHandlers(mux *asynq.ServeMux, h *TaskHandler) {
	mux.HandleFunc(tasks.WeeklyBonusTask, h.HandleWeeklyBonus)
	mux.HandleFunc(tasks.ChallengeExpiryTask, h.HandleChallengeExpiry)
}

// RegisterSchedules enrolls the periodic sweeps. The weekly sweep fires
// daily; the engine's own interval guard decides whether a bonus is due,
// so extra fires are harmless.
func RegisterSchedules(scheduler *asynq.Scheduler) error {
	if _, err := scheduler.Register("@daily",
		asynq.NewTask(tasks.WeeklyBonusTask, nil),
		asynq.Queue("low"),
	); err != nil {
		return err
	}

	if _, err := scheduler.Register("@hourly",
		asynq.NewTask(tasks.ChallengeExpiryTask, nil),
		asynq.Queue("low"),
	); err != nil {
		return err
	}

	return nil
}

func (h *TaskHandler) HandleWeeklyBonus(ctx context.Context, t *asynq.Task) error {
	now := taskTime(t)

	award, err := h.engine.AwardWeeklyBonus(ctx, now)
	if errors.Is(err, ErrTooSoon) {
		// The interval has not elapsed; the next fire will pick it up.
		return nil
	}
	if err != nil {
		return err
	}

	if award.Winner != "" {
		zap.L().Info("weekly bonus sweep completed",
			zap.String("winner", award.Winner),
			zap.String("amount", award.Amount),
		)
	}
	return nil
}

func (h *TaskHandler) HandleChallengeExpiry(ctx context.Context, t *asynq.Task) error {
	now := taskTime(t)

	status, err := h.engine.ChallengeStatus(ctx, now)
	if err != nil {
		return err
	}

	if status.State == challenge.StateExpired {
		zap.L().Warn("community challenge expired without completion",
			zap.Int64("progress", status.Progress),
			zap.Int64("goal", status.Goal),
			zap.Time("deadline", status.Deadline),
		)
	}
	return nil
}

// taskTime prefers the enqueue-time clock carried in the payload and falls
// back to the wall clock for tasks scheduled without one.
func taskTime(t *asynq.Task) time.Time {
	var p tasks.WeeklyBonusPayload
	if len(t.Payload()) > 0 && json.Unmarshal(t.Payload(), &p) == nil && p.ScheduledAt > 0 {
		return time.Unix(p.ScheduledAt, 0).UTC()
	}
	return time.Now().UTC()
}
