package trade

import "time"

// DefaultChatHistory is the number of chat lines kept per trading peer.
// Oldest lines are evicted when this limit is exceeded.
const DefaultChatHistory = 200

// Chatter says who wrote a chat line.
type Chatter string

const (
	// ChatterMe marks lines the local user sent.
	ChatterMe Chatter = "me"
	// ChatterThem marks lines the counterparty sent.
	ChatterThem Chatter = "them"
)

// ChatEntry is one line of a trade window's chat.
type ChatEntry struct {
	Chatter Chatter   `json:"chatter"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// appendChat appends e, dropping the oldest lines beyond limit.
func appendChat(log []ChatEntry, e ChatEntry, limit int) []ChatEntry {
	log = append(log, e)
	if limit > 0 && len(log) > limit {
		trimmed := make([]ChatEntry, limit)
		copy(trimmed, log[len(log)-limit:])
		log = trimmed
	}
	return log
}
