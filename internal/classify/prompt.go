package classify

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are an assistant helping vacation rental property managers triage guest messages.
Classify the intent, assess the risk level, determine urgency and suggest a reply.

Always respond with valid JSON matching this structure:
{
  "intent": "%s",
  "risk": "low" | "medium" | "high" | "critical",
  "urgency": "low" | "normal" | "high" | "urgent",
  "summary": "Brief 1-2 sentence summary of the message",
  "suggestedReply": "Professional, friendly reply suggestion",
  "confidence": 0.0 to 1.0
}

`

const guidance = `Risk level guidance:
- LOW: Simple questions, routine requests
- MEDIUM: Important questions, minor issues
- HIGH: Complaints, urgent needs, payment issues
- CRITICAL: Emergencies, cancellations, safety concerns

Intent guidance:
- checkin: Arrival, access codes, directions
- checkout: Departure, checkout time
- question: General inquiries about amenities or location
- complaint: Issues, problems, dissatisfaction
- cancellation: Wants to cancel or modify the reservation
- booking_inquiry: Questions before booking
- maintenance: Something broken or not working
- amenity_request: Requesting additional items or services
- other: Anything else`

// BuildPrompt renders the classification prompt for text. Only the last
// three previous messages are included.
func BuildPrompt(text string, c Context) string {
	var prompt strings.Builder

	prompt.WriteString(fmt.Sprintf(systemPrompt, strings.Join(Intents, `" | "`)))
	prompt.WriteString("Analyze this guest message for a vacation rental property.\n\n")

	prompt.WriteString("Property: " + c.PropertyName)
	if c.PropertyAddress != "" {
		prompt.WriteString(" (" + c.PropertyAddress + ")")
	}
	prompt.WriteString("\n")
	prompt.WriteString("Guest: " + c.GuestName + "\n\n")

	if len(c.KnowledgeBase) > 0 {
		prompt.WriteString("Property Information (Knowledge Base):\n")
		for _, kb := range c.KnowledgeBase {
			prompt.WriteString(fmt.Sprintf("\n[%s]\n%s\n", kb.Title, kb.Content))
		}
		prompt.WriteString("\n")
	}

	if len(c.PreviousMessages) > 0 {
		history := c.PreviousMessages
		if len(history) > historyInPrompt {
			history = history[len(history)-historyInPrompt:]
		}
		prompt.WriteString("Previous conversation:\n")
		for _, m := range history {
			prompt.WriteString(fmt.Sprintf("%s: %s\n", m.SenderType, m.Text))
		}
		prompt.WriteString("\n")
	}

	prompt.WriteString("Current message:\n" + text + "\n\n")
	prompt.WriteString(guidance)

	return prompt.String()
}
