package database

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Thread binds one external conversation to one local task. The external
// thread itself is created implicitly by the first message sent with the
// thread key. Like spaces, the task binding is unique among active rows
// only; deactivated threads are kept as history so a task can be bound
// again after its project is re-synced.
type Thread struct {
	Model
	TaskID  uint  `json:"-" gorm:"index"`
	Task    Task  `json:"-" gorm:"foreignKey:TaskID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	SpaceID uint  `json:"-" gorm:"index"`
	Space   Space `json:"-" gorm:"foreignKey:SpaceID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	ThreadKey  string `json:"thread_key" gorm:"index"`
	ThreadName string `json:"thread_name"`
	Active     bool   `json:"active" gorm:"default:true"`

	MessageCount  int        `json:"message_count" gorm:"default:0"`
	LastMessageID string     `json:"last_message_id"`
	LastEventAt   *time.Time `json:"last_event_at,omitempty"`
}

// FindThreadByName resolves a provider thread name like
// "spaces/AAAA/threads/task-42" to the thread record bound in that space.
// The key is the last path segment.
func FindThreadByName(db *gorm.DB, spaceID uint, threadName string) (*Thread, error) {
	if threadName == "" {
		return nil, nil
	}
	key := threadName
	if idx := strings.LastIndex(threadName, "/"); idx >= 0 {
		key = threadName[idx+1:]
	}

	var thread Thread
	q := db.Where("space_id = ? AND thread_key = ? AND active = ?", spaceID, key, true).First(&thread)
	if q.Error != nil {
		if q.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, q.Error
	}
	return &thread, nil
}

// ActiveThreadForTask returns the single active thread bound to a task.
func ActiveThreadForTask(db *gorm.DB, taskID uint) (*Thread, error) {
	var thread Thread
	q := db.Where("task_id = ? AND active = ?", taskID, true).First(&thread)
	if q.Error != nil {
		if q.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, q.Error
	}
	return &thread, nil
}
