package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/scoutlabs/scout/chat"
	"github.com/scoutlabs/scout/voice"
)

var (
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	scoutStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	listeningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("202")).Bold(true)
	suggestionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

type transcriptMsg string

type replyMsg struct {
	reply      string
	suggestion *chat.Suggestion
	err        error
}

type model struct {
	viewport  viewport.Model
	composer  textarea.Model
	messages  []chat.Message
	client    *Client
	driver    *voice.Driver
	recordCmd []string
	logger    *log.Logger

	transcripts chan string
	listening   bool
	paused      bool
	waiting     bool
	ready       bool
	err         error
}

func newModel(
	client *Client,
	driver *voice.Driver,
	recordCmd []string,
	logger *log.Logger,
) model {
	composer := textarea.New()
	composer.Placeholder = "Talk to Scout..."
	composer.SetHeight(2)
	composer.Focus()

	transcripts := make(chan string, 16)
	driver.OnTranscript(func(text string) {
		select {
		case transcripts <- text:
		default:
		}
	})

	return model{
		composer:    composer,
		messages:    []chat.Message{},
		client:      client,
		driver:      driver,
		recordCmd:   recordCmd,
		logger:      logger,
		transcripts: transcripts,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForTranscript(m.transcripts))
}

func waitForTranscript(transcripts chan string) tea.Cmd {
	return func() tea.Msg {
		return transcriptMsg(<-transcripts)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.stopListening()
			return m, tea.Quit

		case "ctrl+r":
			if m.listening {
				draft := m.stopListening()
				if draft != "" {
					m.composer.SetValue(draft)
				}
			} else if err := m.startListening(); err != nil {
				m.err = err
			} else {
				m.listening = true
				m.paused = false
				m.composer.SetValue("")
			}
			return m, nil

		case "ctrl+p":
			if !m.listening {
				return m, nil
			}
			if m.paused {
				m.driver.Resume()
				m.paused = false
			} else {
				m.driver.Pause()
				m.paused = true
			}
			return m, nil

		case "enter":
			text := strings.TrimSpace(m.composer.Value())
			if text == "" || m.waiting {
				return m, nil
			}
			if m.listening {
				m.stopListening()
			}
			m.driver.Reset()
			m.composer.SetValue("")
			m.messages = append(m.messages, chat.Message{
				ID:      uuid.NewString(),
				Role:    chat.RoleUser,
				Content: text,
			})
			m.waiting = true
			m.refreshViewport()
			return m, m.sendCmd()
		}

	case tea.WindowSizeMsg:
		footerHeight := lipgloss.Height(m.footerView())
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - footerHeight
		}
		m.composer.SetWidth(msg.Width - 4)
		m.refreshViewport()

	case transcriptMsg:
		if m.listening {
			m.composer.SetValue(string(msg))
		}
		cmds = append(cmds, waitForTranscript(m.transcripts))

	case replyMsg:
		m.waiting = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			content := msg.reply
			if msg.suggestion != nil {
				content += "\n" + suggestionStyle.Render(
					msg.suggestion.Label+"\n"+msg.suggestion.Description+
						"\n→ "+msg.suggestion.CtaLabel,
				)
			}
			m.messages = append(m.messages, chat.Message{
				ID:      uuid.NewString(),
				Role:    chat.RoleAssistant,
				Content: content,
			})
		}
		m.refreshViewport()
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) startListening() error {
	source, err := voice.NewExecSource(m.recordCmd)
	if err != nil {
		return err
	}
	if err := m.driver.Start(context.Background(), source); err != nil {
		if closeErr := source.Close(); closeErr != nil {
			m.logger.Debug("close source", "error", closeErr)
		}
		return err
	}
	return nil
}

func (m *model) stopListening() string {
	if !m.listening {
		return ""
	}
	// The driver closes the recorder as part of Stop.
	draft := m.driver.Stop()
	m.listening = false
	m.paused = false
	return draft
}

func (m *model) sendCmd() tea.Cmd {
	history := make([]chat.Message, len(m.messages))
	copy(history, m.messages)

	return func() tea.Msg {
		reply, suggestion, err := m.client.Send(context.Background(), history)
		return replyMsg{reply: reply, suggestion: suggestion, err: err}
	}
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}

	var b strings.Builder
	for _, msg := range m.messages {
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(userStyle.Render("You"))
		default:
			b.WriteString(scoutStyle.Render("Scout"))
		}
		b.WriteString("\n")
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
	}
	if m.waiting {
		b.WriteString(statusStyle.Render("Scout is thinking..."))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m model) footerView() string {
	status := "ctrl+r mic · ctrl+p pause · enter send · esc quit"
	switch {
	case m.listening && m.paused:
		status = listeningStyle.Render("Paused") + " · " + status
	case m.listening:
		status = listeningStyle.Render("Listening...") + " · " + status
	}
	if m.err != nil {
		status = fmt.Sprintf("error: %v · %s", m.err, status)
	}

	return statusStyle.Render(status) + "\n" + m.composer.View()
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}
	return m.viewport.View() + "\n" + m.footerView()
}

// Run starts the terminal composer against a running scout server.
func Run(baseURL string, recordCmd []string, logger *log.Logger) error {
	client := NewClient(baseURL)
	driver := voice.NewDriver(baseURL+"/api/stt/stream", logger)

	p := tea.NewProgram(
		newModel(client, driver, recordCmd, logger),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
