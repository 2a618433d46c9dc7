// Package chat runs a conversation against an inference session: it seeds
// the persona prompt, loops over user lines and prints the final stats.
package chat

// Persona frames the conversation.
type Persona struct {
	// Text introduces the conversation to the model.
	Text string
	// Greeting is the scripted first assistant line.
	Greeting     string
	UserTag      string
	AssistantTag string
}

// History is the scripted transcript that follows the persona text.
func (p Persona) History() string {
	return p.AssistantTag + ": " + p.Greeting
}

// SeedText is the prompt fed before the first user line.
func (p Persona) SeedText() string {
	return p.Text + "\n" + p.History()
}

// Turn is the prompt for one user line. It ends with the assistant tag and
// colon so the model continues as the assistant.
func (p Persona) Turn(line string) string {
	return p.UserTag + ": " + line + "\n" + p.AssistantTag + ":"
}

// InputPrompt is shown when waiting for a user line.
func (p Persona) InputPrompt() string {
	return p.UserTag + ": "
}
