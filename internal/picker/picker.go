// Package picker provides the interactive skill selector for
// `asma install --interactive`.
package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Item is one selectable skill
type Item struct {
	ID       string // unique key, e.g. "project/doc-helper"
	Label    string
	Detail   string // shown dimmed after the label
	Group    string // section heading; consecutive items share it
	Selected bool
}

// Model is the Bubble Tea model for the multi-select picker
type Model struct {
	title    string
	items    []Item
	cursor   int
	selected map[string]bool
	done     bool
	quitting bool
}

// New creates a picker. Items marked Selected start checked.
func New(title string, items []Item) Model {
	selected := make(map[string]bool)
	for _, item := range items {
		if item.Selected {
			selected[item.ID] = true
		}
	}

	return Model{
		title:    title,
		items:    items,
		selected: selected,
	}
}

// Selected returns the IDs of checked items in display order
func (m Model) Selected() []string {
	var result []string
	for _, item := range m.items {
		if m.selected[item.ID] {
			result = append(result, item.ID)
		}
	}
	return result
}

// IsQuitting reports whether the user left without confirming
func (m Model) IsQuitting() bool {
	return m.quitting
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(keyMsg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(keyMsg, keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case key.Matches(keyMsg, keys.Toggle):
		if len(m.items) > 0 {
			id := m.items[m.cursor].ID
			m.selected[id] = !m.selected[id]
		}

	case key.Matches(keyMsg, keys.All):
		all := true
		for _, item := range m.items {
			if !m.selected[item.ID] {
				all = false
				break
			}
		}
		for _, item := range m.items {
			m.selected[item.ID] = !all
		}

	case key.Matches(keyMsg, keys.Confirm):
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	groupStyle    = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	detailStyle   = lipgloss.NewStyle().Faint(true)
)

// View implements tea.Model
func (m Model) View() string {
	if m.done || m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	group := ""
	for i, item := range m.items {
		if item.Group != "" && (i == 0 || item.Group != group) {
			group = item.Group
			b.WriteString("\n" + groupStyle.Render(group) + "\n")
		}

		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}

		checked := "[ ]"
		if m.selected[item.ID] {
			checked = selectedStyle.Render("[x]")
		}

		line := fmt.Sprintf("%s%s %s", cursor, checked, item.Label)
		if item.Detail != "" {
			line += " " + detailStyle.Render(item.Detail)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n")
	b.WriteString(detailStyle.Render("space: toggle • a: all/none • enter: install • q: quit"))

	return b.String()
}

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	All     key.Binding
	Confirm key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k")),
	Down:    key.NewBinding(key.WithKeys("down", "j")),
	Toggle:  key.NewBinding(key.WithKeys(" ")),
	All:     key.NewBinding(key.WithKeys("a")),
	Confirm: key.NewBinding(key.WithKeys("enter")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c")),
}

// Run shows the picker and returns the selected IDs. A quit returns nil, nil.
func Run(title string, items []Item, opts ...tea.ProgramOption) ([]string, error) {
	p := tea.NewProgram(New(title, items), opts...)

	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	fm := finalModel.(Model)
	if fm.IsQuitting() {
		return nil, nil
	}
	return fm.Selected(), nil
}
