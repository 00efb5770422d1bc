package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chatsync/database"
	"chatsync/errs"
	"chatsync/gateway"

	"gorm.io/gorm"
)

// Mapper maintains the bidirectional binding between local projects/tasks
// and external spaces/threads, creating external resources on demand.
type Mapper struct {
	DB      *gorm.DB
	Gateway *gateway.Client
	Logger  *slog.Logger
}

func NewMapper(db *gorm.DB, gw *gateway.Client, logger *slog.Logger) *Mapper {
	return &Mapper{DB: db, Gateway: gw, Logger: logger}
}

// EnsureSpace returns the active space bound to a project, creating the
// external space and the binding when none exists. Exactly one active space
// per project; a concurrent create surfaces as ConflictError.
func (m *Mapper) EnsureSpace(ctx context.Context, projectID uint) (*database.Space, error) {
	existing, err := database.ActiveSpaceForProject(m.DB, projectID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var project database.Project
	if q := m.DB.First(&project, "id = ?", projectID); q.Error != nil {
		return nil, fmt.Errorf("loading project %d: %w", projectID, q.Error)
	}

	cred, err := database.ActiveCredentialForCompany(m.DB, project.CompanyID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("no active chat credential for company %d", project.CompanyID)}
	}

	resource, err := m.Gateway.CreateSpace(ctx, cred.ID, project.Name)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	space := database.Space{
		ProjectID:    project.ID,
		CredentialID: cred.ID,
		ExternalID:   resource.Name,
		DisplayName:  resource.DisplayName,
		SpaceType:    resource.SpaceType,
		Active:       true,
		LastSync:     &now,
	}
	if err := m.createSpaceRecord(&space); err != nil {
		return nil, err
	}

	m.Logger.Info("created space", "project", project.Name, "space", resource.Name)
	return &space, nil
}

// createSpaceRecord inserts a new active binding. Uniqueness is scoped to
// active rows: inactive bindings for the same project are history and do not
// block a re-sync, but a second active binding is a conflict. The check and
// the insert run in one transaction.
func (m *Mapper) createSpaceRecord(space *database.Space) error {
	return m.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if q := tx.Model(&database.Space{}).Where("project_id = ? AND active = ?", space.ProjectID, true).Count(&count); q.Error != nil {
			return q.Error
		}
		if count > 0 {
			return &errs.ConflictError{Resource: "space", Key: fmt.Sprintf("project %d", space.ProjectID)}
		}
		if q := tx.Create(space); q.Error != nil {
			if errors.Is(q.Error, gorm.ErrDuplicatedKey) {
				return &errs.ConflictError{Resource: "space", Key: space.ExternalID}
			}
			return fmt.Errorf("creating space record: %w", q.Error)
		}
		return nil
	})
}

// ThreadKeyForTask derives the deterministic thread key for a task.
func ThreadKeyForTask(task *database.Task) string {
	return fmt.Sprintf("task-%d", task.ID)
}

// EnsureThread returns the active thread bound to a task, creating the
// binding when none exists. The task's project must already have an active
// space; the external thread itself is created implicitly by the first
// message sent with the thread key.
func (m *Mapper) EnsureThread(ctx context.Context, taskID uint) (*database.Thread, error) {
	existing, err := database.ActiveThreadForTask(m.DB, taskID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var task database.Task
	if q := m.DB.First(&task, "id = ?", taskID); q.Error != nil {
		return nil, fmt.Errorf("loading task %d: %w", taskID, q.Error)
	}

	space, err := database.ActiveSpaceForProject(m.DB, task.ProjectID)
	if err != nil {
		return nil, err
	}
	if space == nil {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("no active space for project %d", task.ProjectID)}
	}

	thread := database.Thread{
		TaskID:     task.ID,
		SpaceID:    space.ID,
		ThreadKey:  ThreadKeyForTask(&task),
		ThreadName: task.Name,
		Active:     true,
	}
	if err := m.createThreadRecord(&thread); err != nil {
		return nil, err
	}

	m.Logger.Info("created thread", "task", task.Name, "thread_key", thread.ThreadKey)
	return &thread, nil
}

// createThreadRecord inserts a new active binding, same active-scoped
// uniqueness rule as createSpaceRecord.
func (m *Mapper) createThreadRecord(thread *database.Thread) error {
	return m.DB.Transaction(func(tx *gorm.DB) error {
		var count int64
		if q := tx.Model(&database.Thread{}).Where("task_id = ? AND active = ?", thread.TaskID, true).Count(&count); q.Error != nil {
			return q.Error
		}
		if count > 0 {
			return &errs.ConflictError{Resource: "thread", Key: fmt.Sprintf("task %d", thread.TaskID)}
		}
		if q := tx.Create(thread); q.Error != nil {
			return fmt.Errorf("creating thread record: %w", q.Error)
		}
		return nil
	})
}
