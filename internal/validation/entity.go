package validation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/iudanet/taskkeeper/pkg/api"
)

// MaxTitleLen максимальная длина заголовка задачи или заметки в символах
const MaxTitleLen = 200

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("validation failed")

// Priorities допустимые приоритеты задачи
var Priorities = []string{api.PriorityLow, api.PriorityMedium, api.PriorityHigh, api.PriorityUrgent}

// Categories допустимые категории задачи
var Categories = []string{
	api.CategoryWork,
	api.CategoryPersonal,
	api.CategoryShopping,
	api.CategoryHealth,
	api.CategoryFinance,
	api.CategoryOther,
}

// ValidateTitle проверяет, что заголовок не пустой и не длиннее MaxTitleLen
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrInvalid)
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return fmt.Errorf("%w: title must not exceed %d characters", ErrInvalid, MaxTitleLen)
	}
	return nil
}

func ValidatePriority(priority string) error {
	if !slices.Contains(Priorities, priority) {
		return fmt.Errorf("%w: priority must be one of %s", ErrInvalid, strings.Join(Priorities, ", "))
	}
	return nil
}

func ValidateCategory(category string) error {
	if !slices.Contains(Categories, category) {
		return fmt.Errorf("%w: category must be one of %s", ErrInvalid, strings.Join(Categories, ", "))
	}
	return nil
}

// ValidateTask проверяет задачу перед сохранением на сервере
func ValidateTask(task *api.Task) error {
	if err := ValidateTitle(task.Title); err != nil {
		return err
	}
	if err := ValidatePriority(task.Priority); err != nil {
		return err
	}
	return ValidateCategory(task.Category)
}

// ValidateNote проверяет заметку перед сохранением на сервере
func ValidateNote(note *api.Note) error {
	return ValidateTitle(note.Title)
}

// ValidateFields checks a loosely typed task or note body as the client builds it.
// Only fields that are present are checked, except that a full body must carry a title.
// Unknown entity types pass unchecked.
func ValidateFields(entityType string, fields map[string]any, full bool) error {
	if entityType != "task" && entityType != "note" {
		return nil
	}

	title, ok := fields["title"]
	switch {
	case ok:
		s, isString := title.(string)
		if !isString {
			return fmt.Errorf("%w: title must be a string", ErrInvalid)
		}
		if err := ValidateTitle(s); err != nil {
			return err
		}
	case full:
		return fmt.Errorf("%w: title cannot be empty", ErrInvalid)
	}

	if entityType != "task" {
		return nil
	}

	if v, ok := fields["priority"]; ok {
		s, _ := v.(string)
		if err := ValidatePriority(s); err != nil {
			return err
		}
	}
	if v, ok := fields["category"]; ok {
		s, _ := v.(string)
		if err := ValidateCategory(s); err != nil {
			return err
		}
	}
	if v, ok := fields["completed"]; ok {
		if _, isBool := v.(bool); !isBool {
			return fmt.Errorf("%w: completed must be true or false", ErrInvalid)
		}
	}

	return nil
}
