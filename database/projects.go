package database

import "time"

// The project-management side of the sync. These records are the local data
// store the pipeline reads from and writes to; their CRUD surface lives in
// the host application, not here.

type Project struct {
	Model
	Name      string `json:"name"`
	CompanyID uint   `json:"company_id" gorm:"index"`
	Active    bool   `json:"active" gorm:"default:true"`
}

const (
	TaskPriorityLow    = "0"
	TaskPriorityNormal = "1"
	TaskPriorityHigh   = "2"
)

type Task struct {
	Model
	Name        string     `json:"name"`
	ProjectID   uint       `json:"-" gorm:"index"`
	Project     Project    `json:"-" gorm:"foreignKey:ProjectID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	AssigneeID  *uint      `json:"-" gorm:"index"`
	Assignee    *Contact   `json:"assignee,omitempty" gorm:"foreignKey:AssigneeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	Stage       string     `json:"stage"`
	Priority    string     `json:"priority" gorm:"default:'1'"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Description string     `json:"description"`
	Tags        string     `json:"tags"`
}

// TaskComment is an entry in a task's activity log. Inbound chat messages
// land here.
type TaskComment struct {
	Model
	TaskID      uint     `json:"-" gorm:"index"`
	Task        Task     `json:"-" gorm:"foreignKey:TaskID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Body        string   `json:"body"`
	AuthorID    *uint    `json:"-" gorm:"index"`
	Author      *Contact `json:"author,omitempty" gorm:"foreignKey:AuthorID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`
	AuthorEmail string   `json:"author_email"`
}

type Contact struct {
	Model
	Name  string `json:"name"`
	Email string `json:"email" gorm:"index"`
}
