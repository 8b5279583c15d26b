package widget

import (
	"fmt"
	"math"
	"strings"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/model"
)

// TaskProgress is derived from the task list on demand.
type TaskProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// TaskList is the in-memory to-do list of one widget instance. Nothing is persisted: a new
// widget instance starts empty.
type TaskList struct {
	items []model.TaskItem
}

// NewTaskList returns an empty list.
func NewTaskList() *TaskList {
	return &TaskList{}
}

// Add appends a trimmed, incomplete task.
func (tasks *TaskList) Add(text string) error {
	trimmedText := strings.TrimSpace(text)
	if trimmedText == "" {
		return ErrEmptyTaskText
	}
	tasks.items = append(tasks.items, model.TaskItem{Text: trimmedText})
	return nil
}

// Toggle flips the completion state at index.
func (tasks *TaskList) Toggle(index int) error {
	if err := tasks.checkIndex(index); err != nil {
		return err
	}
	tasks.items[index].Completed = !tasks.items[index].Completed
	return nil
}

// Remove deletes the task at index.
func (tasks *TaskList) Remove(index int) error {
	if err := tasks.checkIndex(index); err != nil {
		return err
	}
	tasks.items = append(tasks.items[:index], tasks.items[index+1:]...)
	return nil
}

// Items returns a copy of the list.
func (tasks *TaskList) Items() []model.TaskItem {
	items := make([]model.TaskItem, len(tasks.items))
	copy(items, tasks.items)
	return items
}

// Progress counts completed tasks and rounds the percentage to the nearest whole number.
func (tasks *TaskList) Progress() TaskProgress {
	progress := TaskProgress{Total: len(tasks.items)}
	for _, item := range tasks.items {
		if item.Completed {
			progress.Completed++
		}
	}
	if progress.Total > 0 {
		progress.Percent = int(math.Round(float64(progress.Completed) / float64(progress.Total) * 100))
	}
	return progress
}

func (tasks *TaskList) checkIndex(index int) error {
	if index < 0 || index >= len(tasks.items) {
		return fmt.Errorf("%w: %d", ErrTaskIndexOutOfRange, index)
	}
	return nil
}
