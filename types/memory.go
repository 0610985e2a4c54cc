package types

import "time"

// Media describes an attachment carried on a message.
type Media struct {
	ID          string `json:"id"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	Source      string `json:"source,omitempty"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Content is the payload of a memory: free text plus optional metadata
// produced or consumed by the model (requested action, source channel,
// attachments, reply threading).
type Content struct {
	Text        string  `json:"text"`
	Action      string  `json:"action,omitempty"`
	Source      string  `json:"source,omitempty"`
	URL         string  `json:"url,omitempty"`
	InReplyTo   *UUID   `json:"inReplyTo,omitempty"`
	Attachments []Media `json:"attachments,omitempty"`
}

// Memory is a stored, embedded unit of content scoped to a room and agent.
// A memory is owned by exactly one memory manager, identified by table name.
type Memory struct {
	ID        UUID      `json:"id"`
	AgentID   UUID      `json:"agentId"`
	RoomID    UUID      `json:"roomId"`
	UserID    UUID      `json:"userId"`
	Content   Content   `json:"content"`
	Embedding []float64 `json:"embedding,omitempty"`
	Unique    bool      `json:"unique,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Actor is a read-only projection of an account joined from room
// participants. The core never creates actors.
type Actor struct {
	ID       UUID   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Details  string `json:"details,omitempty"`
}

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalDone       GoalStatus = "DONE"
	GoalFailed     GoalStatus = "FAILED"
	GoalInProgress GoalStatus = "IN_PROGRESS"
)

// Objective is a single checklist item inside a goal.
type Objective struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Goal tracks an in-progress intention for a room, mutated by evaluators
// and actions through the storage facade.
type Goal struct {
	ID         UUID        `json:"id"`
	Name       string      `json:"name"`
	RoomID     UUID        `json:"roomId"`
	UserID     UUID        `json:"userId"`
	Objectives []Objective `json:"objectives"`
	Status     GoalStatus  `json:"status"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Account is an identity record owned by account management.
type Account struct {
	ID       UUID   `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Details  string `json:"details,omitempty"`
}

// Room is a conversation scope.
type Room struct {
	ID        UUID      `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Participant links an account to a room.
type Participant struct {
	ID     UUID `json:"id"`
	UserID UUID `json:"userId"`
	RoomID UUID `json:"roomId"`
}

// Relationship records that two users have interacted.
type Relationship struct {
	ID        UUID      `json:"id"`
	UserA     UUID      `json:"userA"`
	UserB     UUID      `json:"userB"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
