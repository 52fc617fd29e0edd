package chat

// Message is one entry of the outbound messages array.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Recent returns the last maxCount turns, oldest first. A maxCount below
// one is treated as one.
func Recent(turns []Turn, maxCount int) []Turn {
	if maxCount < 1 {
		maxCount = 1
	}
	if len(turns) > maxCount {
		turns = turns[len(turns)-maxCount:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Window builds the outbound context: the system instruction, the last
// maxCount turns and finally the new user query.
func Window(turns []Turn, maxCount int, systemInstruction, query string) []Message {
	recent := Recent(turns, maxCount)

	messages := make([]Message, 0, len(recent)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: systemInstruction})
	for _, turn := range recent {
		role := RoleAssistant
		if turn.Role == RoleUser {
			role = RoleUser
		}
		messages = append(messages, Message{Role: role, Content: turn.Content})
	}
	return append(messages, Message{Role: RoleUser, Content: query})
}
