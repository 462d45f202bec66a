package ui

import (
	"image/color"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/NicolasHaas/rq/pkg/client"
	"github.com/NicolasHaas/rq/pkg/model"
	"github.com/NicolasHaas/rq/pkg/present"
)

const avatarSize = 28

// cardView is a rendered card and the inputs it was rendered from.
type cardView struct {
	card     present.Card
	expanded bool
	obj      fyne.CanvasObject
}

func (cv *cardView) matches(c present.Card, expanded bool) bool {
	return cv.expanded == expanded && reflect.DeepEqual(cv.card, c)
}

func composeCards(v client.View) []present.Card {
	return present.ComposeAll(v.Queues, v.User)
}

func (a *App) buildCard(c present.Card) *cardView {
	style := present.StyleFor(a.theme)
	expanded := a.expanded[c.ID]

	bg := canvas.NewRectangle(cardColor(style, c.Status))
	bg.CornerRadius = style.Radius

	title := widget.NewLabelWithStyle(c.Name, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	title.Truncation = fyne.TextTruncateEllipsis
	status := widget.NewLabel(c.StatusLabel)
	status.Importance = statusImportance(c)

	id := c.ID
	hide := widget.NewButtonWithIcon("", theme.VisibilityOffIcon(), func() { a.engine.Hide(id) })
	hide.Importance = widget.LowImportance

	header := container.NewBorder(nil, nil, a.hashtagImage(c), container.NewHBox(status, hide), title)
	rows := []fyne.CanvasObject{header}

	if c.RestrictToGroup != "" {
		group := widget.NewLabel("Group: " + c.RestrictToGroup)
		group.Importance = widget.LowImportance
		rows = append(rows, group)
	}

	if len(c.Members) > 0 {
		avatars := container.NewHBox()
		for _, m := range c.Members {
			avatars.Add(a.avatar(m))
		}
		rows = append(rows, container.NewHScroll(avatars))
	}

	if len(c.Actions) > 0 {
		rows = append(rows, container.NewHBox(a.actionButtons(c)...))
	}

	toggle := widget.NewButton(messagesCaption(len(c.Messages), expanded), func() { a.toggleMessages(id) })
	toggle.Importance = widget.LowImportance
	rows = append(rows, container.NewHBox(toggle, layout.NewSpacer()))

	if expanded {
		for _, m := range c.Messages {
			text := widget.NewLabel(m.Content)
			text.Wrapping = fyne.TextWrapWord
			rows = append(rows, container.NewBorder(nil, nil, a.avatar(m.Sender), nil, text))
		}
		if c.CanMessage {
			rows = append(rows, a.composer(id))
		}
	}

	body := container.NewPadded(container.NewVBox(rows...))
	return &cardView{card: c, expanded: expanded, obj: container.NewStack(bg, body)}
}

func (a *App) actionButtons(c present.Card) []fyne.CanvasObject {
	buttons := make([]fyne.CanvasObject, 0, len(c.Actions))
	for _, act := range c.Actions {
		id, name := c.ID, c.Name
		btn := widget.NewButton(act.Label(), func() {
			if act == model.ActionDelete {
				a.confirmDelete(id, name)
				return
			}
			if err := a.engine.Dispatcher().Do(act, id); err != nil {
				dialog.ShowError(err, a.window)
			}
		})
		switch act {
		case model.ActionJoin, model.ActionStart:
			btn.Importance = widget.HighImportance
		case model.ActionDelete:
			btn.Importance = widget.DangerImportance
		}
		buttons = append(buttons, btn)
	}
	return buttons
}

func (a *App) confirmDelete(id int64, name string) {
	dialog.ShowConfirm("Delete queue", "Delete "+name+"?", func(ok bool) {
		if ok {
			a.engine.Dispatcher().Delete(id)
		}
	}, a.window)
}

// composer is the message entry for a card. Unsent text is kept in drafts so
// it survives the card being rebuilt.
func (a *App) composer(id int64) fyne.CanvasObject {
	entry := widget.NewEntry()
	entry.SetPlaceHolder("Say something...")
	entry.SetText(a.drafts[id])
	entry.OnChanged = func(s string) { a.drafts[id] = s }

	send := func() {
		if a.engine.Dispatcher().Message(id, entry.Text) {
			delete(a.drafts, id)
			entry.SetText("")
		}
	}
	entry.OnSubmitted = func(string) { send() }
	btn := widget.NewButtonWithIcon("", theme.MailSendIcon(), send)
	return container.NewBorder(nil, nil, nil, btn, entry)
}

func (a *App) hashtagImage(c present.Card) fyne.CanvasObject {
	res := a.images.Get(c.ImageURL)
	if res == nil {
		return layout.NewSpacer()
	}
	img := canvas.NewImageFromResource(res)
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(fyne.NewSize(40, 40))
	return img
}

// avatar shows the user's picture once loaded, initials on a tinted circle
// until then.
func (a *App) avatar(av present.Avatar) fyne.CanvasObject {
	if res := a.images.Get(av.URL); res != nil {
		img := canvas.NewImageFromResource(res)
		img.FillMode = canvas.ImageFillContain
		img.SetMinSize(fyne.NewSize(avatarSize, avatarSize))
		return img
	}

	circle := canvas.NewCircle(avatarFill(av.Title))
	text := canvas.NewText(initials(av), color.White)
	text.TextStyle = fyne.TextStyle{Bold: true}
	text.TextSize = 11
	text.Alignment = fyne.TextAlignCenter

	box := container.NewStack(circle, container.NewCenter(text))
	return container.NewGridWrap(fyne.NewSize(avatarSize, avatarSize), box)
}

func avatarFill(name string) color.Color {
	c, err := colorful.Hex("#" + present.AvatarColor(name))
	if err != nil {
		return color.Gray{Y: 0x80}
	}
	return c
}

// initials is up to two letters naming the user: the first letters of the
// first and last words of the full name, or the username's first letter.
func initials(av present.Avatar) string {
	words := strings.Fields(av.Title)
	if len(words) == 0 {
		words = strings.Fields(av.User.Username)
	}
	if len(words) == 0 {
		return "?"
	}
	first := firstLetter(words[0])
	if len(words) == 1 {
		return first
	}
	return first + firstLetter(words[len(words)-1])
}

func firstLetter(s string) string {
	for _, r := range s {
		return string(unicode.ToUpper(r))
	}
	return ""
}

func statusImportance(c present.Card) widget.Importance {
	switch c.Status {
	case model.StatusStarted:
		return widget.WarningImportance
	case model.StatusClosed:
		return widget.LowImportance
	}
	if c.Joined {
		return widget.SuccessImportance
	}
	return widget.MediumImportance
}

func messagesCaption(n int, expanded bool) string {
	switch {
	case expanded:
		return "Hide messages"
	case n == 1:
		return "1 message"
	default:
		return strconv.Itoa(n) + " messages"
	}
}
