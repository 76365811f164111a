package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task represents a single to-do item embedded in a user's document.
type Task struct {
	// ID is the unique identifier of the task. It never changes once assigned.
	ID uuid.UUID `json:"id"`

	// Title is the short name of the task.
	Title string `json:"title"`

	// Description holds the task details.
	Description string `json:"description"`

	// Completed reports whether the task is done. New tasks start incomplete.
	Completed bool `json:"completed"`

	// CreatedAt is the timestamp when the task was created.
	CreatedAt time.Time `json:"createdAt"`
}

// TaskPatch is a partial update to a Task. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// Empty reports whether the patch carries no fields.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Completed == nil
}

// Apply returns a copy of t with the present patch fields applied.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	return t
}

// TaskList is an insertion-ordered set of tasks keyed by task ID.
// The zero value is not usable; construct with NewTaskList.
type TaskList struct {
	order []uuid.UUID
	byID  map[uuid.UUID]Task
}

// NewTaskList builds a list from tasks in the given order.
// Later duplicates of an ID replace the earlier entry in place.
func NewTaskList(tasks ...Task) *TaskList {
	l := &TaskList{
		order: make([]uuid.UUID, 0, len(tasks)),
		byID:  make(map[uuid.UUID]Task, len(tasks)),
	}
	for _, task := range tasks {
		l.put(task)
	}
	return l
}

// Len returns the number of tasks.
func (l *TaskList) Len() int {
	return len(l.order)
}

// Get returns the task with the given ID.
func (l *TaskList) Get(id uuid.UUID) (Task, bool) {
	task, ok := l.byID[id]
	return task, ok
}

// Append adds a task at the end of the list. It returns false if the ID is already present.
func (l *TaskList) Append(task Task) bool {
	if _, exists := l.byID[task.ID]; exists {
		return false
	}
	l.put(task)
	return true
}

// Patch applies p to the task with the given ID and returns the updated task.
func (l *TaskList) Patch(id uuid.UUID, p TaskPatch) (Task, bool) {
	task, ok := l.byID[id]
	if !ok {
		return Task{}, false
	}
	task = p.Apply(task)
	l.byID[id] = task
	return task, true
}

// Remove deletes the task with the given ID, keeping the order of the rest.
func (l *TaskList) Remove(id uuid.UUID) bool {
	if _, ok := l.byID[id]; !ok {
		return false
	}
	delete(l.byID, id)
	for i, key := range l.order {
		if key == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns the tasks in insertion order.
func (l *TaskList) All() []Task {
	tasks := make([]Task, 0, len(l.order))
	for _, id := range l.order {
		tasks = append(tasks, l.byID[id])
	}
	return tasks
}

// Clone returns an independent copy of the list.
func (l *TaskList) Clone() *TaskList {
	return NewTaskList(l.All()...)
}

// MarshalJSON encodes the list as an array in insertion order.
func (l *TaskList) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.All())
}

// UnmarshalJSON decodes an array of tasks, replacing the list contents.
func (l *TaskList) UnmarshalJSON(data []byte) error {
	var tasks []Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return err
	}
	*l = *NewTaskList(tasks...)
	return nil
}

func (l *TaskList) put(task Task) {
	if _, exists := l.byID[task.ID]; !exists {
		l.order = append(l.order, task.ID)
	}
	l.byID[task.ID] = task
}
