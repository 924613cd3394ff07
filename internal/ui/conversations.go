package ui

// Conversation is a chat target shown in the sidebar.
type Conversation struct {
	ID   int64
	Name string
}

// DefaultConversations is the fixed target list.
func DefaultConversations() []Conversation {
	return []Conversation{
		{ID: 2, Name: "John Doe"},
		{ID: 3, Name: "Jane Smith"},
		{ID: 4, Name: "Alex Johnson"},
	}
}
