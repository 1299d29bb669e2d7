package ui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ideapedyudi/tabby/internal/menu"
)

// ErrPromptCancelled is returned when the user dismisses a prompt.
var ErrPromptCancelled = menu.ErrCancelled

var (
	promptConfirm = key.NewBinding(key.WithKeys("enter"))
	promptCancel  = key.NewBinding(key.WithKeys("esc", "ctrl+c"))
)

// PromptModel asks for one line of text.
type PromptModel struct {
	message string
	input   textinput.Model

	done      bool
	cancelled bool
}

// NewPrompt creates a prompt pre-filled with defaultValue.
func NewPrompt(message, defaultValue string) *PromptModel {
	ti := textinput.New()
	ti.CharLimit = 128
	ti.Width = 40
	ti.SetValue(defaultValue)
	ti.CursorEnd()
	ti.Focus()
	return &PromptModel{message: message, input: ti}
}

func (m *PromptModel) Init() tea.Cmd { return textinput.Blink }

func (m *PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(k, promptConfirm):
			m.done = true
			return m, tea.Quit
		case key.Matches(k, promptCancel):
			m.done = true
			m.cancelled = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *PromptModel) View() string {
	if m.done {
		return ""
	}
	return S().Title.Render(m.message) + "\n" + m.input.View() + "\n" +
		S().Footer.Render("Enter confirm | Esc cancel") + "\n"
}

// Value returns the entered text, or false if the prompt was cancelled.
func (m *PromptModel) Value() (string, bool) {
	if !m.done || m.cancelled {
		return "", false
	}
	return m.input.Value(), true
}

// TeaPrompter answers menu prompts with an interactive PromptModel.
type TeaPrompter struct {
	In  io.Reader
	Out io.Writer
}

var _ menu.Prompter = TeaPrompter{}

func (p TeaPrompter) Prompt(ctx context.Context, message, defaultValue string) (string, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.In != nil {
		opts = append(opts, tea.WithInput(p.In))
	}
	if p.Out != nil {
		opts = append(opts, tea.WithOutput(p.Out))
	}

	m := NewPrompt(message, defaultValue)
	if _, err := tea.NewProgram(m, opts...).Run(); err != nil {
		return "", fmt.Errorf("run prompt: %w", err)
	}
	v, ok := m.Value()
	if !ok {
		return "", ErrPromptCancelled
	}
	return strings.TrimSpace(v), nil
}
