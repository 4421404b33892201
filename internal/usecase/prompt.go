package usecase

import (
	"strings"

	"memory-keeper/internal/domain"
)

const (
	blogSystemPrompt = "You are a kind writer who formats memories into family blogs."
	storyUserPrefix  = "Please transform these precious memories into a beautiful family story:\n\n"
	greetingNudge    = "Greet the storyteller warmly and ask your first question."
)

func buildStoryPrompt() string {
	return strings.Join([]string{
		"You are a skilled writer who transforms conversational memories into beautiful, heartfelt blog-style stories.",
		"",
		"Your task is to:",
		"1. Take the raw memories shared below and craft them into a warm, flowing narrative",
		"2. Maintain the personal voice and emotional authenticity",
		"3. Add descriptive details that bring the memories to life",
		"4. Structure it with clear paragraphs and natural transitions",
		"5. Keep the tone nostalgic, warm, and family-oriented",
		"6. Preserve specific names, places, and dates mentioned",
		"7. Write in first person, as if the grandparent is telling the story",
		"",
		"Format the output as a complete story ready to be shared with family.",
	}, "\n")
}

func buildInterviewerPrompt() string {
	return strings.Join([]string{
		"You are a gentle interviewer helping an older family member record their life memories.",
		"",
		"Behavior Rules:",
		"1) Ask one open question at a time.",
		"2) Follow up on names, places, dates and feelings the storyteller mentions.",
		"3) Keep replies short and warm; never lecture or summarize at length.",
		"4) Do not invent memories or put words in the storyteller's mouth.",
	}, "\n")
}

// buildStorySource joins the user turns in order, separated by a blank line.
// Assistant and system turns are never part of the source material.
func buildStorySource(turns []domain.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		if t.Role != domain.RoleUser {
			continue
		}
		parts = append(parts, t.Content)
	}
	return strings.Join(parts, "\n\n")
}

func hasUserContent(turns []domain.Turn) bool {
	for _, t := range turns {
		if t.Role == domain.RoleUser && strings.TrimSpace(t.Content) != "" {
			return true
		}
	}
	return false
}

func buildStoryMessages(turns []domain.Turn) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: string(domain.RoleSystem), Content: buildStoryPrompt()},
		{Role: string(domain.RoleUser), Content: storyUserPrefix + buildStorySource(turns)},
	}
}

func buildBlogMessages(transcript string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: string(domain.RoleSystem), Content: blogSystemPrompt},
		{Role: string(domain.RoleUser), Content: transcript},
	}
}

func buildInterviewMessages(turns []domain.Turn) []domain.ChatMessage {
	messages := []domain.ChatMessage{{Role: string(domain.RoleSystem), Content: buildInterviewerPrompt()}}
	if len(turns) == 0 {
		messages = append(messages, domain.ChatMessage{Role: string(domain.RoleSystem), Content: greetingNudge})
		return messages
	}
	return append(messages, domain.ChatMessages(turns)...)
}

// summarize returns the first n characters of s.
func summarize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
