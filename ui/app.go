// Package ui provides the Fyne-based desktop GUI for the rq client.
package ui

import (
	"errors"
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/NicolasHaas/rq/pkg/client"
	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/version"
)

// App is the main GUI application. All fields are owned by the fyne main
// goroutine; engine callbacks hop onto it with fyne.Do.
type App struct {
	fyneApp fyne.App
	window  fyne.Window
	engine  *client.Engine

	// UI components
	cardBox     *fyne.Container
	emptyLabel  *widget.Label
	statusLabel *widget.Label
	restoreBtn  *widget.Button

	// State
	view             client.View
	theme            model.Theme
	themed           bool
	cards            map[int64]*cardView
	expanded         map[int64]bool   // queues showing their messages
	drafts           map[int64]string // unsent composer text
	images           *imageCache
	promptedSettings bool
	unsubscribe      func()
}

// NewApp creates the GUI around engine. Call before engine.Run so notices
// are not missed.
func NewApp(engine *client.Engine) *App {
	a := &App{
		fyneApp:  app.NewWithID("io.rq.client"),
		engine:   engine,
		cards:    make(map[int64]*cardView),
		expanded: make(map[int64]bool),
		drafts:   make(map[int64]string),
	}
	a.images = newImageCache(func(string) {
		fyne.Do(a.rebuild)
	})
	a.engine.OnNotice = func(n client.NoticeEvent) {
		fyne.Do(func() { a.notify(n) })
	}
	a.window = a.fyneApp.NewWindow("rq")
	a.window.Resize(fyne.NewSize(460, 720))
	a.window.SetMaster()
	return a
}

// Run starts the GUI application (blocks).
func (a *App) Run() {
	a.buildUI()
	a.unsubscribe = a.engine.Subscribe(func(v client.View) {
		fyne.Do(func() { a.render(v) })
	})
	defer a.unsubscribe()
	a.window.ShowAndRun()
}

func (a *App) buildUI() {
	toolbar := widget.NewToolbar(
		widget.NewToolbarAction(theme.ContentAddIcon(), a.showNewQueueDialog),
		widget.NewToolbarAction(theme.ViewRefreshIcon(), a.engine.Refresh),
		widget.NewToolbarSpacer(),
		widget.NewToolbarAction(theme.SettingsIcon(), a.showSettingsDialog),
		widget.NewToolbarAction(theme.InfoIcon(), a.showAboutDialog),
	)

	a.emptyLabel = widget.NewLabelWithStyle("", fyne.TextAlignCenter, fyne.TextStyle{Italic: true})
	a.cardBox = container.NewVBox(a.emptyLabel)
	scroll := container.NewVScroll(container.NewPadded(a.cardBox))

	a.statusLabel = widget.NewLabel("Disconnected")
	a.statusLabel.TextStyle = fyne.TextStyle{Italic: true}
	a.restoreBtn = widget.NewButtonWithIcon("", theme.VisibilityIcon(), a.engine.RestoreAll)
	a.restoreBtn.Importance = widget.LowImportance
	a.restoreBtn.Hide()

	versionLabel := widget.NewLabel(version.String())
	versionLabel.TextStyle = fyne.TextStyle{Italic: true}
	versionLabel.Importance = widget.LowImportance

	statusBar := container.NewHBox(a.statusLabel, layout.NewSpacer(), a.restoreBtn, versionLabel)

	a.window.SetContent(container.NewBorder(toolbar, statusBar, nil, nil, scroll))
	a.window.SetMainMenu(fyne.NewMainMenu(
		fyne.NewMenu("Queues",
			fyne.NewMenuItem("New Queue...", a.showNewQueueDialog),
			fyne.NewMenuItem("Refresh", a.engine.Refresh),
			fyne.NewMenuItem("Restore hidden queues", a.engine.RestoreAll),
		),
		fyne.NewMenu("Settings",
			fyne.NewMenuItem("Preferences...", a.showSettingsDialog),
			fyne.NewMenuItem("About", a.showAboutDialog),
		),
	))

	// Closing the window keeps the client in the tray so notices still arrive.
	if desk, ok := a.fyneApp.(desktop.App); ok {
		desk.SetSystemTrayMenu(fyne.NewMenu("rq",
			fyne.NewMenuItem("Show", a.raise),
			fyne.NewMenuItem("New Queue...", func() {
				a.raise()
				a.showNewQueueDialog()
			}),
		))
		a.window.SetCloseIntercept(a.window.Hide)
	}
}

// render draws v. Cards whose content did not change keep their widgets, so
// an open composer survives periodic refreshes.
func (a *App) render(v client.View) {
	a.view = v
	if !a.themed || v.Settings.Theme != a.theme {
		a.theme = v.Settings.Theme
		a.themed = true
		a.fyneApp.Settings().SetTheme(newTheme(a.theme))
		clear(a.cards)
	}

	a.statusLabel.SetText(statusText(v))
	if v.Hidden > 0 {
		a.restoreBtn.SetText(fmt.Sprintf("Restore hidden (%d)", v.Hidden))
		a.restoreBtn.Show()
	} else {
		a.restoreBtn.Hide()
	}

	a.renderCards()

	if v.Settings.Username == "" && !a.promptedSettings {
		a.promptedSettings = true
		a.showSettingsDialog()
	}
}

func (a *App) renderCards() {
	cards := composeCards(a.view)
	next := make(map[int64]*cardView, len(cards))
	objs := make([]fyne.CanvasObject, 0, len(cards)+1)
	for _, c := range cards {
		cv := a.cards[c.ID]
		if cv == nil || !cv.matches(c, a.expanded[c.ID]) {
			cv = a.buildCard(c)
		}
		next[c.ID] = cv
		objs = append(objs, cv.obj)
	}
	a.cards = next

	for id := range a.drafts {
		if _, ok := next[id]; !ok {
			delete(a.drafts, id)
		}
	}

	if len(objs) == 0 {
		a.emptyLabel.SetText(emptyText(a.view))
		objs = append(objs, a.emptyLabel)
	}
	a.cardBox.Objects = objs
	a.cardBox.Refresh()
}

// rebuild redraws every card from the last view.
func (a *App) rebuild() {
	clear(a.cards)
	a.renderCards()
}

func (a *App) toggleMessages(id int64) {
	a.expanded[id] = !a.expanded[id]
	a.renderCards()
}

func (a *App) raise() {
	a.window.Show()
	a.window.RequestFocus()
}

func (a *App) notify(n client.NoticeEvent) {
	title, body, ok := noticeText(n)
	if !ok {
		return
	}
	a.fyneApp.SendNotification(fyne.NewNotification(title, body))
	a.raise()
}

// statusText is the status bar caption for v.
func statusText(v client.View) string {
	switch v.State {
	case client.StateConnected:
		if v.User.Username != "" {
			return "Connected as " + v.User.Username
		}
		return "Connected"
	case client.StateConnecting:
		return "Connecting..."
	}
	if v.Err != nil {
		return "Disconnected: " + v.Err.Error()
	}
	return "Disconnected"
}

// emptyText is shown in place of cards when there are none to show.
func emptyText(v client.View) string {
	switch {
	case !v.Synced:
		return "Waiting for the hub..."
	case v.Hidden > 0:
		return "All queues are hidden."
	default:
		return "No queues yet. Create one with +."
	}
}

// ----- Dialogs -----

func (a *App) showNewQueueDialog() {
	name := widget.NewEntry()
	name.SetPlaceHolder("#lunch")
	name.Validator = func(s string) error {
		return model.ValidateQueueName(strings.TrimSpace(s))
	}
	group := widget.NewEntry()
	group.SetPlaceHolder("(everyone)")

	d := dialog.NewForm("New Queue", "Create", "Cancel",
		[]*widget.FormItem{
			widget.NewFormItem("Name", name),
			widget.NewFormItem("Restrict to group", group),
		},
		func(ok bool) {
			if ok {
				a.engine.Dispatcher().Create(name.Text, group.Text)
			}
		}, a.window)
	d.Resize(fyne.NewSize(380, 220))
	d.Show()
}

func (a *App) showSettingsDialog() {
	current := a.view.Settings

	fullName := widget.NewEntry()
	fullName.SetText(current.FullName)
	username := widget.NewEntry()
	username.SetText(current.Username)
	username.Validator = func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("username is required")
		}
		return nil
	}
	email := widget.NewEntry()
	email.SetText(current.Email)
	groups := widget.NewEntry()
	groups.SetText(strings.Join(current.Groups, ", "))
	groups.SetPlaceHolder("team, ops")
	hubURL := widget.NewEntry()
	hubURL.SetText(current.HubURL)
	hubURL.SetPlaceHolder(client.DefaultHubURL)

	names := make([]string, 0, len(model.Themes))
	for _, t := range model.Themes {
		names = append(names, t.String())
	}
	themeSelect := widget.NewSelect(names, nil)
	if a.themed {
		themeSelect.SetSelected(current.Theme.String())
	}

	d := dialog.NewForm("Settings", "Save", "Cancel",
		[]*widget.FormItem{
			widget.NewFormItem("Full name", fullName),
			widget.NewFormItem("Username", username),
			widget.NewFormItem("Email", email),
			widget.NewFormItem("Groups", groups),
			widget.NewFormItem("Theme", themeSelect),
			widget.NewFormItem("Hub URL", hubURL),
		},
		func(ok bool) {
			if !ok {
				return
			}
			s := model.Settings{
				FullName: strings.TrimSpace(fullName.Text),
				Username: strings.TrimSpace(username.Text),
				Email:    strings.TrimSpace(email.Text),
				Groups:   model.ParseGroups(groups.Text),
				Theme:    selectedTheme(themeSelect.Selected),
				HubURL:   strings.TrimSpace(hubURL.Text),
			}
			if err := a.engine.WriteSettings(s); err != nil {
				dialog.ShowError(err, a.window)
			}
		}, a.window)
	d.Resize(fyne.NewSize(440, 420))
	d.Show()
}

// selectedTheme maps the settings form selection to a theme. Nothing
// selected means Modern.
func selectedTheme(name string) model.Theme {
	t, err := model.ParseTheme(name)
	if err != nil {
		return model.ThemeModern
	}
	return t
}

func (a *App) showAboutDialog() {
	var b strings.Builder
	b.WriteString("rq: shared queues for the office\n\n")
	for _, f := range version.Fields() {
		fmt.Fprintf(&b, "%-8s %s\n", f[0]+":", f[1])
	}
	b.WriteString("\nCARDS\n" +
		"  Join / Leave     Add or remove yourself\n" +
		"  Start            Move an open queue to Started\n" +
		"  Nag              Nudge everyone about a queue\n" +
		"  Reset            Reopen a started or closed queue\n" +
		"  Delete           Close a queue; delete again to remove it\n" +
		"  Eye icon         Hide a queue until restored\n")

	label := widget.NewLabel(b.String())
	label.TextStyle = fyne.TextStyle{Monospace: true}
	d := dialog.NewCustom("About rq", "Close", container.NewVScroll(label), a.window)
	d.Resize(fyne.NewSize(460, 400))
	d.Show()
}
