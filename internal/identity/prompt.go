package identity

import (
	"fmt"

	"github.com/ashureev/trainingdesk/internal/oracle"
)

const extractionSystemPrompt = `You are an internal employee-directory assistant.
Return ONLY a JSON object with the string keys "id" and "name".
Never invent employees. Use only information the user states explicitly.
Use an empty string for any value the user did not give.
"name" is the first name only, spelled exactly as the user wrote it. Drop any last name.
If the message carries no identifying information at all, return {"id": "", "name": ""}.
You may use the system message shown before the user's message to understand intent:
if the system asked for an id and the user replied with only digits, that is the id.
Do not return explanations or code blocks.

Example 1:
User: "My name is Alice with id 123"
Output: {"id": "123", "name": "Alice"}

Example 2:
User: "Hi I am Alice Cohen"
Output: {"id": "", "name": "Alice"}

Example 3:
User: "Which videos did I finish?"
Output: {"id": "", "name": ""}`

func extractionRequest(text, lastSystemMessage string) oracle.Request {
	return oracle.Request{
		Purpose: oracle.PurposeIdentity,
		System:  extractionSystemPrompt,
		User: fmt.Sprintf("The system message before the user's message is: %s\n\nUser message: %s\n\nReturn only the JSON object.",
			lastSystemMessage, text),
		Temperature: 0,
	}
}
