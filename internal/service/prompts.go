package service

import "fmt"

const askSystemPrompt = "You are a friendly and practical gardening expert."

const diagnoseSystemPrompt = `You are an expert plant pathologist and gardening advisor.
Given a user's observation of a plant problem and their local weather, respond with these sections:
1. Possible Cause
2. Symptoms to Confirm
3. Immediate Actions
4. Treatment Options (organic and chemical)
5. Prevention Tips
Keep the advice practical and concise.`

// askUserPrompt prefixes the question with local weather when a live or fallback summary is given.
// An empty weather string means the question is sent as written.
func askUserPrompt(weather, query string) string {
	if weather == "" {
		return query
	}
	return fmt.Sprintf("Local weather: %s\n\nQuestion: %s", weather, query)
}

// diagnoseUserPrompt always carries the weather summary, even a fallback, and the raw observation.
func diagnoseUserPrompt(weather, description string) string {
	return fmt.Sprintf("User's location context: %s\n\nUser's observation: '%s'", weather, description)
}
