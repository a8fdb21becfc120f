package api

import "time"

// Task priorities accepted by the server.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Task categories accepted by the server.
const (
	CategoryWork     = "work"
	CategoryPersonal = "personal"
	CategoryShopping = "shopping"
	CategoryHealth   = "health"
	CategoryFinance  = "finance"
	CategoryOther    = "other"
)

// Task представляет задачу пользователя
type Task struct {
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DueDate      *time.Time `json:"due_date"`
	ReminderTime *time.Time `json:"reminder_time"`
	Description  *string    `json:"description"`
	Title        string     `json:"title"`
	Priority     string     `json:"priority"`
	Category     string     `json:"category"`
	ID           int64      `json:"id"`
	Completed    bool       `json:"completed"`
}

// Note представляет заметку пользователя
type Note struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ID        int64     `json:"id"`
}

// ErrorResponse is the body of every non-2xx response.
// Current carries the server's version of the entity on 409 Conflict.
type ErrorResponse struct {
	Current map[string]any `json:"current,omitempty"`
	Error   string         `json:"error"`
	Message string         `json:"message"`
}

// HealthResponse is returned by GET /api/health/.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
