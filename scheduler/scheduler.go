package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chatsync/mapper"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// SchedulerService manages all scheduled tasks
type SchedulerService struct {
	scheduler       *gocron.Scheduler
	DB              *gorm.DB
	ctx             context.Context
	cancel          context.CancelFunc
	mapper          *mapper.Mapper
	registeredTasks map[string]Task
	Logger          *slog.Logger
}

// NewSchedulerService creates a new scheduler service
func NewSchedulerService(DB *gorm.DB, m *mapper.Mapper, logger *slog.Logger) *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())

	s := gocron.NewScheduler(time.UTC)

	return &SchedulerService{
		scheduler:       s,
		DB:              DB,
		ctx:             ctx,
		cancel:          cancel,
		mapper:          m,
		registeredTasks: make(map[string]Task),
		Logger:          logger,
	}
}

// Start begins running the scheduler
func (s *SchedulerService) Start() {
	s.Logger.Info("starting scheduler service")
	s.scheduler.StartAsync()
}

// Stop halts all scheduled jobs
func (s *SchedulerService) Stop() {
	s.Logger.Info("stopping scheduler service")
	s.scheduler.Stop()
	s.cancel()
}

// RegisterTasks sets up all scheduled tasks
func (s *SchedulerService) RegisterTasks() {
	s.registerTaskGroup(SubscriptionTasks(s.DB, s.mapper, s.ctx))
	s.registerTaskGroup(DataMaintenanceTasks(s.DB))

	s.Logger.Info("registered scheduled tasks", "count", len(s.registeredTasks))
}

func (s *SchedulerService) registerTaskGroup(tasks []Task) {
	for _, task := range tasks {
		if !task.Enabled {
			s.Logger.Info("skipping disabled task", "task", task.Name)
			continue
		}

		s.registerTask(task)
	}
}

func (s *SchedulerService) registerTask(task Task) {
	s.registeredTasks[task.Name] = task

	job, err := s.scheduler.Cron(task.Schedule).Do(func() {
		s.Logger.Info("running scheduled task", "task", task.Name, "description", task.Description)

		if err := task.Handler(); err != nil {
			s.Logger.Error("task failed", "task", task.Name, "error", err)
		} else {
			s.Logger.Info("task completed", "task", task.Name)
		}
	})

	if err != nil {
		s.Logger.Error("error scheduling task", "task", task.Name, "error", err)
		return
	}

	job.Tag(task.Name)

	s.Logger.Info("registered task", "task", task.Name, "schedule", task.Schedule)
}

// GetTaskByName returns a task by its name
func (s *SchedulerService) GetTaskByName(name string) (Task, bool) {
	task, exists := s.registeredTasks[name]
	return task, exists
}

// ListTasks returns all registered tasks
func (s *SchedulerService) ListTasks() []Task {
	tasks := make([]Task, 0, len(s.registeredTasks))
	for _, task := range s.registeredTasks {
		tasks = append(tasks, task)
	}
	return tasks
}

// RunTaskNow runs a task immediately by name
func (s *SchedulerService) RunTaskNow(name string) error {
	task, exists := s.registeredTasks[name]
	if !exists {
		return fmt.Errorf("task %s not found", name)
	}

	return task.Handler()
}
