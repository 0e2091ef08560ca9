package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tatianab/castle-adventure/internal/game"
	"github.com/tatianab/castle-adventure/internal/models"
)

type sessionState int

const (
	stateLoading sessionState = iota
	statePlaying
	stateConfirmNew
	stateFinished
	stateError
)

type model struct {
	state     sessionState
	svc       *game.Service
	owner     models.Identity
	textInput textinput.Model
	viewport  viewport.Model
	err       error
	gameLog   string
	width     int
	height    int

	view    *game.SceneView
	pending *game.Summary
}

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EEEEEE")).
			Background(lipgloss.Color("#5F5F87")).
			Bold(true).
			PaddingLeft(1)

	gameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D7875F")).
			Italic(true)

	lockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#3C3C3C")).
			PaddingLeft(2).
			Foreground(lipgloss.Color("#AAAAAA"))

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Bold(true).
			Underline(true)
)

const helpText = "Commands: a letter to choose, take <n>, /inventory, /endings, /new, /quit"

func NewModel(svc *game.Service, owner models.Identity) model {
	ti := textinput.New()
	ti.Placeholder = "What do you do?"
	ti.Focus()
	ti.CharLimit = 64
	ti.Width = 40

	return model{
		state:     stateLoading,
		svc:       svc,
		owner:     owner,
		textInput: ti,
		viewport:  viewport.New(80, 20),
		width:     100,
		height:    26,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.resume())
}

type sceneMsg struct {
	view   *game.SceneView
	header string
}

type turnMsg struct {
	result *game.TurnResult
	view   *game.SceneView
}

type pickupMsg struct {
	item *models.Item
	view *game.SceneView
}

type inventoryMsg struct {
	items []models.Item
}

type endingsMsg struct {
	statuses []game.EndingStatus
}

type confirmMsg struct {
	summary game.Summary
}

// noticeMsg reports a rejected action; the game carries on.
type noticeMsg struct {
	err error
}

type errMsg struct {
	err error
}

func (m model) logWidth() int {
	return int(float64(m.width) * 0.75)
}

func (m *model) appendLog(s string) {
	m.gameLog += s + "\n\n"
	m.viewport.SetContent(m.gameLog)
	m.viewport.GotoBottom()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			input := m.textInput.Value()
			m.textInput.Reset()
			return m.handleInput(input)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = m.logWidth()
		m.viewport.Height = msg.Height - 6
		m.viewport.SetContent(m.gameLog)

	case sceneMsg:
		m.state = statePlaying
		m.view = msg.view
		if msg.header != "" {
			m.appendLog(noticeStyle.Render(msg.header))
		}
		m.appendLog(m.renderScene())
		return m, nil

	case turnMsg:
		if msg.result.Died {
			m.appendLog(noticeStyle.Render("You died."))
		}
		if msg.result.Ending != nil {
			m.state = stateFinished
			m.view = nil
			m.appendLog(renderEnding(msg.result.Destination, *msg.result.Ending, m.logWidth()))
			m.appendLog(helpStyle.Render("Type /new to play again, /endings to see your collection, or /quit."))
			return m, nil
		}
		m.view = msg.view
		m.appendLog(m.renderScene())
		return m, nil

	case pickupMsg:
		m.view = msg.view
		m.appendLog(gameStyle.Render(fmt.Sprintf("You take the %s %s.", msg.item.Name, msg.item.Icon)))
		return m, nil

	case inventoryMsg:
		m.appendLog(renderInventory(msg.items))
		return m, nil

	case endingsMsg:
		m.appendLog(renderEndings(msg.statuses))
		return m, nil

	case confirmMsg:
		m.state = stateConfirmNew
		m.pending = &msg.summary
		m.appendLog(noticeStyle.Render(fmt.Sprintf(
			"Start over? You are in %s after %d choices with %d items and %d deaths. Type y to confirm.",
			msg.summary.SceneTitle, msg.summary.ChoicesMade, msg.summary.ItemsCollected, msg.summary.Deaths)))
		return m, nil

	case noticeMsg:
		m.appendLog(noticeStyle.Render(describe(msg.err)))
		return m, nil

	case errMsg:
		m.err = msg.err
		m.state = stateError
		return m, nil
	}

	if m.state != stateError {
		m.textInput, cmd = m.textInput.Update(msg)
	}
	return m, cmd
}

func (m model) handleInput(input string) (tea.Model, tea.Cmd) {
	if m.state == stateConfirmNew {
		m.pending = nil
		if answer := strings.ToLower(strings.TrimSpace(input)); answer == "y" || answer == "yes" {
			return m, m.startNew(true)
		}
		m.state = statePlaying
		m.appendLog(helpStyle.Render("Carrying on."))
		return m, nil
	}
	if m.state != statePlaying && m.state != stateFinished {
		return m, nil
	}

	c, err := parseCommand(input)
	if errors.Is(err, errEmptyCommand) {
		return m, nil
	}
	m.appendLog(userStyle.Width(m.logWidth()).Render("> " + input))
	if err != nil {
		m.appendLog(noticeStyle.Render(err.Error()))
		return m, nil
	}

	switch c.kind {
	case cmdQuit:
		return m, tea.Quit
	case cmdHelp:
		m.appendLog(helpStyle.Render(helpText))
		return m, nil
	case cmdEndings:
		return m, m.listEndings()
	case cmdNewGame:
		return m, m.startNew(false)
	}

	if m.state == stateFinished || m.view == nil {
		m.appendLog(noticeStyle.Render("The story is over. Type /new to play again."))
		return m, nil
	}

	switch c.kind {
	case cmdInventory:
		return m, m.inventory()
	case cmdTake:
		itemID := c.arg
		if i, ok := itemIndex(c.arg, len(m.view.Items)); ok {
			itemID = m.view.Items[i].ID
		}
		return m, m.pickup(itemID)
	case cmdChoose:
		return m, m.choose(models.ChoiceID(m.view.Scene.ID, c.arg))
	}
	return m, nil
}

// describe turns a rejected action into a line for the player.
func describe(err error) string {
	var confirm *game.ConfirmationRequiredError
	switch {
	case errors.As(err, &confirm):
		return "Your current game would be lost."
	case errors.Is(err, game.ErrNoActiveGame):
		return "There is no game in progress. Type /new to start one."
	}
	return "You can't do that: " + err.Error()
}

func (m model) View() string {
	var s string

	switch m.state {
	case stateLoading:
		s = "\n  Opening the castle gates...\n"

	case statePlaying, stateConfirmNew, stateFinished:
		mainView := lipgloss.JoinHorizontal(lipgloss.Top,
			m.viewport.View(),
			m.renderState(),
		)
		s = lipgloss.JoinVertical(lipgloss.Left,
			mainView,
			"\n"+m.textInput.View(),
			"\n"+helpStyle.Render(helpText),
		)

	case stateError:
		s = fmt.Sprintf("\n  Error: %v\n\nPress Esc to quit.", m.err)
	}

	return "\n" + s + "\n"
}

func (m model) renderScene() string {
	v := m.view
	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Scene.Title) + "\n\n")
	b.WriteString(gameStyle.Width(m.logWidth()).Render(v.Scene.Description))

	if len(v.Items) > 0 {
		b.WriteString("\n\nYou notice:")
		for i, it := range v.Items {
			fmt.Fprintf(&b, "\n  %d. %s %s", i+1, it.Icon, it.Name)
		}
	}

	b.WriteString("\n")
	for _, c := range v.Choices {
		line := fmt.Sprintf("\n[%s] %s", c.Choice.Label, c.Choice.Text)
		if c.Locked {
			b.WriteString(lockedStyle.Render(line + " (locked)"))
			continue
		}
		b.WriteString(line)
	}
	return b.String()
}

func renderEnding(scene models.Scene, end models.Ending, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(scene.Title) + "\n\n")
	b.WriteString(gameStyle.Width(width).Render(scene.Description) + "\n\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s %s", end.Icon, end.Title)) + "\n\n")
	b.WriteString(gameStyle.Width(width).Render(end.Description))
	if end.Achievement != "" {
		b.WriteString("\n\nAchievement: " + end.Achievement)
	}
	return b.String()
}

func renderInventory(items []models.Item) string {
	if len(items) == 0 {
		return "Your pack is empty."
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("INVENTORY"))
	for _, it := range items {
		fmt.Fprintf(&b, "\n%s %s: %s", it.Icon, it.Name, it.Description)
	}
	return b.String()
}

func renderEndings(statuses []game.EndingStatus) string {
	var b strings.Builder
	unlocked := 0
	for _, s := range statuses {
		if s.Unlocked {
			unlocked++
		}
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("ENDINGS %d/%d", unlocked, len(statuses))))
	for _, s := range statuses {
		switch {
		case s.Hidden():
			b.WriteString("\n  ??? (secret)")
		case s.Unlocked:
			fmt.Fprintf(&b, "\n✔ %s %s", s.Ending.Icon, s.Ending.Title)
		default:
			b.WriteString(lockedStyle.Render(fmt.Sprintf("\n  %s", s.Ending.Title)))
		}
	}
	return b.String()
}

func (m model) renderState() string {
	if m.view == nil || m.view.State == nil {
		return ""
	}
	st := m.view.State

	location := titleStyle.Render("LOCATION") + "\n" + m.view.Scene.Title + "\n\n"

	stats := titleStyle.Render("STATS") + "\n" +
		fmt.Sprintf("Choices: %d\nDeaths: %d\nVisited: %d\n", st.ChoicesMade, st.Deaths, len(st.Visited))
	var friends []string
	if st.Flags.WizardHelped {
		friends = append(friends, "wizard")
	}
	if st.Flags.TrollBefriended {
		friends = append(friends, "troll")
	}
	if st.Flags.DragonBefriended {
		friends = append(friends, "dragon")
	}
	if len(friends) > 0 {
		stats += "Friends: " + strings.Join(friends, ", ") + "\n"
	}
	stats += "\n"

	inventory := titleStyle.Render("INVENTORY") + "\n"
	if len(st.Inventory) == 0 {
		inventory += "(empty)"
	}
	for _, id := range st.Inventory {
		if it, err := m.svc.Graph().Item(id); err == nil {
			inventory += it.Icon + " " + it.Name + "\n"
		}
	}

	width := int(float64(m.width) * 0.23)
	return stateStyle.Width(width).Height(m.viewport.Height).Render(location + stats + inventory)
}

func (m model) sceneView(ctx context.Context) (*game.SceneView, error) {
	st, err := m.svc.CurrentState(ctx, m.owner)
	if err != nil {
		return nil, err
	}
	return m.svc.ViewScene(ctx, m.owner, st.CurrentScene)
}

func (m model) resume() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		st, err := m.svc.StartOrResume(ctx, m.owner)
		if err != nil {
			return errMsg{err}
		}
		view, err := m.svc.ViewScene(ctx, m.owner, st.CurrentScene)
		if err != nil {
			return errMsg{err}
		}
		header := ""
		if st.HasProgress() {
			header = fmt.Sprintf("Welcome back. %d choices so far.", st.ChoicesMade)
		}
		return sceneMsg{view: view, header: header}
	}
}

func (m model) choose(choiceID string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		res, err := m.svc.ApplyChoice(ctx, m.owner, choiceID)
		if err != nil {
			return noticeMsg{err}
		}
		if res.Ending != nil {
			return turnMsg{result: res}
		}
		view, err := m.svc.ViewScene(ctx, m.owner, res.State.CurrentScene)
		if err != nil {
			return errMsg{err}
		}
		return turnMsg{result: res, view: view}
	}
}

func (m model) pickup(itemID string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		item, err := m.svc.PickupItem(ctx, m.owner, itemID)
		if err != nil {
			return noticeMsg{err}
		}
		view, err := m.sceneView(ctx)
		if err != nil {
			return errMsg{err}
		}
		return pickupMsg{item: item, view: view}
	}
}

func (m model) inventory() tea.Cmd {
	return func() tea.Msg {
		items, err := m.svc.ViewInventory(context.Background(), m.owner)
		if err != nil {
			return noticeMsg{err}
		}
		return inventoryMsg{items}
	}
}

func (m model) listEndings() tea.Cmd {
	return func() tea.Msg {
		statuses, err := m.svc.ListEndings(context.Background(), m.owner)
		if err != nil {
			return noticeMsg{err}
		}
		return endingsMsg{statuses}
	}
}

func (m model) startNew(confirm bool) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		st, err := m.svc.StartNewGame(ctx, m.owner, confirm)
		var needConfirm *game.ConfirmationRequiredError
		if errors.As(err, &needConfirm) {
			return confirmMsg{needConfirm.Summary}
		}
		if err != nil {
			return errMsg{err}
		}
		view, err := m.svc.ViewScene(ctx, m.owner, st.CurrentScene)
		if err != nil {
			return errMsg{err}
		}
		return sceneMsg{view: view, header: "A new adventure begins."}
	}
}

func Run(svc *game.Service, owner models.Identity) error {
	p := tea.NewProgram(NewModel(svc, owner), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
