// Package tasks defines the messages exchanged over Kafka.
package tasks

import "time"

// KnowledgeReloadTask asks every instance to reload its knowledge base.
type KnowledgeReloadTask struct {
	// Origin is the instance that published the task; it has already reloaded.
	Origin      string    `json:"origin"`
	Path        string    `json:"path"`
	Entries     int       `json:"entries"`
	RequestedBy uint      `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}
