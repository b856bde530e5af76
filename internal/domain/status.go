package domain

import "fmt"

type Status string

const (
	StatusInQueue    Status = "in-queue"
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusDelayed    Status = "delayed"
)

var transitions = map[Status][]Status{
	StatusInQueue:    {StatusPending},
	StatusPending:    {StatusInProgress, StatusCompleted, StatusDelayed},
	StatusInProgress: {StatusPending, StatusCompleted, StatusDelayed},
}

// ParseStatus validates a wire value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusInQueue, StatusPending, StatusInProgress, StatusCompleted, StatusDelayed:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", s)}
}

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusDelayed }

// Open reports whether a task in s still has work outstanding.
func (s Status) Open() bool { return !s.Terminal() }

// CanTransition reports whether from -> to is a legal edge. Staying in the
// same status is always legal. Leaving in-queue is only done by the cascade
// unblock, never by a caller.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
