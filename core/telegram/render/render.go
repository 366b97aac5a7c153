// Package render turns transport-neutral replies into Telegram messages.
package render

import (
	"context"
	"strings"

	"github.com/klipworks/memberbot/core/dispatch"
	"github.com/klipworks/memberbot/core/telegram/format"
	tghelpers "github.com/klipworks/memberbot/core/telegram/helpers"
	"github.com/klipworks/memberbot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// Responder adapts a tele.Context into a dispatch.Responder. Private
// replies from group chats are redirected to the user's direct chat.
func Responder(c tele.Context) dispatch.Responder {
	return dispatch.ResponderFunc(func(_ context.Context, r dispatch.Reply) error {
		return send(c, r)
	})
}

func send(c tele.Context, r dispatch.Reply) error {
	text, useMarkdown := buildText(r)
	markup := buildMarkup(r.Buttons)

	if r.Private && c.Chat() != nil && c.Chat().Type != tele.ChatPrivate {
		return sendDirect(c, r, text, useMarkdown, markup)
	}

	if r.View != nil && r.View.ImageURL != "" {
		return tghelpers.SendPhoto(c, r.View.ImageURL, text, markup)
	}
	if useMarkdown {
		return tghelpers.SendMDV2(c, text, markup)
	}
	if markup != nil {
		return tghelpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: markup})
	}
	return tghelpers.SendText(c, text)
}

func sendDirect(c tele.Context, r dispatch.Reply, text string, useMarkdown bool, markup *tele.ReplyMarkup) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	opts := &tele.SendOptions{ReplyMarkup: markup}
	if useMarkdown {
		opts.ParseMode = tele.ModeMarkdownV2
	}
	var what interface{} = text
	if r.View != nil && r.View.ImageURL != "" {
		what = &tele.Photo{File: tele.FromURL(r.View.ImageURL), Caption: text}
	}
	_, err := c.Bot().Send(user, what, opts)
	return err
}

// buildText renders the reply body. Structured views use MarkdownV2 with
// escaped user content; bare text goes out without a parse mode.
func buildText(r dispatch.Reply) (string, bool) {
	if r.View == nil {
		return r.Text, false
	}
	var b strings.Builder
	if r.View.Title != "" {
		b.WriteString("*")
		b.WriteString(format.EscapeV2(r.View.Title))
		b.WriteString("*")
	}
	if r.View.Body != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(format.EscapeV2(r.View.Body))
	}
	if r.Text != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(format.EscapeV2(r.Text))
	}
	return b.String(), true
}

func buildMarkup(buttons []dispatch.Button) *tele.ReplyMarkup {
	if len(buttons) == 0 {
		return nil
	}
	btns := make([]keyboard.InlineBtn, 0, len(buttons))
	for _, b := range buttons {
		btns = append(btns, keyboard.InlineBtn{
			Text:   b.Label,
			Unique: b.Action,
			URL:    b.URL,
		})
	}
	return keyboard.InlineButtonsNPerRow(btns, 1)
}
