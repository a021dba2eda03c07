package llm

// Conversation is an immutable multi-turn history. Every method that extends
// it returns a new value with its own backing array, so a conversation can be
// handed to concurrent callers or discarded after a failed turn without
// affecting anyone else's copy.
type Conversation struct {
	messages []Message
}

// NewConversation starts a conversation from existing messages
func NewConversation(messages ...Message) Conversation {
	return Conversation{messages: append([]Message(nil), messages...)}
}

// Messages returns a copy of the history
func (c Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Len returns the number of messages
func (c Conversation) Len() int {
	return len(c.messages)
}

// With returns a new conversation with msgs appended
func (c Conversation) With(msgs ...Message) Conversation {
	out := make([]Message, 0, len(c.messages)+len(msgs))
	out = append(out, c.messages...)
	out = append(out, msgs...)
	return Conversation{messages: out}
}
