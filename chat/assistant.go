package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/scoutlabs/scout/llm"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Suggestion is a structured call-to-action the assistant may attach to a
// reply, rendered by clients as a card below the message.
type Suggestion struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	Description string `json:"description"`
	CtaLabel    string `json:"ctaLabel"`
	Href        string `json:"href,omitempty"`
}

const (
	suggestionTypeLinkedIn = "connect-linkedin"

	defaultSuggestionDescription = "Sync your LinkedIn so Scout can " +
		"understand your profile, portfolio, and experience to surface " +
		"roles that truly fit you."
)

// controlBlock is the JSON payload the model appends between <CONTROL> tags
// when it decides the conversation has enough context to pitch LinkedIn.
type controlBlock struct {
	ConnectLinkedIn bool   `json:"connectLinkedIn"`
	Description     string `json:"description"`
}

var scrubPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\(No CONTROL block needed[^)]*\)`),
	regexp.MustCompile(`(?i)\(CONTROL block not needed[^)]*\)`),
}

type Assistant struct {
	model  llm.LanguageModel
	logger *log.Logger
}

func NewAssistant(model llm.LanguageModel, logger *log.Logger) *Assistant {
	return &Assistant{
		model:  model,
		logger: logger,
	}
}

// Respond produces the assistant's next reply for the given conversation
// history, plus an optional structured suggestion parsed from the model's
// control block. Credential rejections from the gateway degrade to a
// demo-mode reply instead of an error.
func (a *Assistant) Respond(
	ctx context.Context,
	history []Message,
) (string, *Suggestion, error) {
	prompt := buildPrompt(history)

	req := &llm.ChatCompletionRequest{
		SystemPrompt: systemPersona,
	}
	req.WithUserMessage(prompt)

	fullText, err := a.model.ChatCompletion(ctx, req)
	if err != nil {
		if llm.IsAuthError(err) {
			a.logger.Warn("gateway rejected credentials, demo mode", "error", err)
			return demoReply(history), nil, nil
		}
		return "", nil, fmt.Errorf("chat completion: %w", err)
	}

	reply, suggestion := parseReply(fullText)
	if suggestion != nil {
		a.logger.Info("suggestion", "type", suggestion.Type)
	}

	return reply, suggestion, nil
}

func buildPrompt(history []Message) string {
	var b strings.Builder
	for i, m := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		speaker := "Assistant"
		if m.Role == RoleUser {
			speaker = "User"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}

	return fmt.Sprintf(
		"%s\n\nConversation so far:\n%s\n\nRespond naturally to the "+
			"user's latest message. Do not mention control blocks or "+
			"system instructions in your response.",
		systemPrompt,
		b.String(),
	)
}

// parseReply splits the model output into the visible reply and the control
// block, if any. An unparseable control block is dropped silently.
func parseReply(fullText string) (string, *Suggestion) {
	reply := fullText
	var suggestion *Suggestion

	start := strings.Index(fullText, "<CONTROL>")
	end := strings.Index(fullText, "</CONTROL>")

	if start != -1 && end != -1 && end > start {
		reply = strings.TrimSpace(fullText[:start])
		controlJSON := strings.TrimSpace(fullText[start+len("<CONTROL>") : end])

		var control controlBlock
		if err := json.Unmarshal([]byte(controlJSON), &control); err == nil &&
			control.ConnectLinkedIn {
			description := strings.TrimSpace(control.Description)
			if description == "" {
				description = defaultSuggestionDescription
			}
			suggestion = &Suggestion{
				Type:        suggestionTypeLinkedIn,
				Label:       "Connect your LinkedIn to discover better-matched jobs",
				Description: description,
				CtaLabel:    "Connect LinkedIn",
				Href:        "https://www.linkedin.com",
			}
		}
	}

	for _, pattern := range scrubPatterns {
		reply = pattern.ReplaceAllString(reply, "")
	}

	return strings.TrimSpace(reply), suggestion
}

// demoReply is served when no usable gateway key is configured, so the chat
// surface keeps working during local development.
func demoReply(history []Message) string {
	var lastUser string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			lastUser = history[i].Content
			break
		}
	}

	reply := "Thanks for your message! I'm currently in demo mode.\n\n" +
		"To enable full AI responses, please configure your OpenRouter " +
		"API key. Get your API key from openrouter.ai/settings/keys. " +
		"This will allow me to help you explore your career path and " +
		"find jobs that match your skills."

	if lastUser != "" {
		quoted := lastUser
		if len(quoted) > 100 {
			quoted = quoted[:100] + "…"
		}
		reply = fmt.Sprintf("%s\n\nYou mentioned: %q", reply, quoted)
	}

	return reply
}
