package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/klipworks/memberbot/core/textcmd"
)

// Content serves operator-managed dynamic commands and keyword triggers
// from the bot_commands and bot_triggers tables. It implements
// textcmd.ContentStore.
type Content struct {
	db *sqlx.DB
}

// NewContent wraps the shared database handle.
func NewContent(db *sqlx.DB) *Content {
	return &Content{db: db}
}

type commandRow struct {
	ReplyText        sql.NullString `db:"reply_text"`
	EmbedTitle       sql.NullString `db:"embed_title"`
	EmbedBody        sql.NullString `db:"embed_body"`
	EmbedColor       sql.NullString `db:"embed_color"`
	ImageURL         sql.NullString `db:"image_url"`
	ThumbnailURL     sql.NullString `db:"thumbnail_url"`
	Ephemeral        bool           `db:"ephemeral"`
	DeleteInvocation bool           `db:"delete_invocation"`
}

const selectCommand = `
SELECT reply_text, embed_title, embed_body, embed_color,
       image_url, thumbnail_url, ephemeral, delete_invocation
FROM bot_commands
WHERE command_name = $1`

// CommandTemplate returns the stored template for the lowercase command
// name, or (nil, nil) when the command does not exist.
func (c *Content) CommandTemplate(ctx context.Context, name string) (*textcmd.Template, error) {
	var row commandRow
	err := c.db.GetContext(ctx, &row, selectCommand, strings.ToLower(name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select command %s: %w", name, err)
	}
	tpl := row.template()
	return &tpl, nil
}

func (r commandRow) template() textcmd.Template {
	return textcmd.Template{
		Text:             r.ReplyText.String,
		Title:            r.EmbedTitle.String,
		Body:             r.EmbedBody.String,
		Color:            r.EmbedColor.String,
		ImageURL:         r.ImageURL.String,
		ThumbnailURL:     r.ThumbnailURL.String,
		Ephemeral:        r.Ephemeral,
		DeleteInvocation: r.DeleteInvocation,
	}
}

type triggerRow struct {
	ID      int64  `db:"id"`
	Keyword string `db:"keyword"`
	Match   string `db:"match_type"`
	commandRow
}

const selectTriggers = `
SELECT id, keyword, match_type,
       reply_text, embed_title, embed_body, embed_color,
       image_url, thumbnail_url, ephemeral, delete_invocation
FROM bot_triggers
ORDER BY id`

// Triggers returns all keyword triggers in stored order.
func (c *Content) Triggers(ctx context.Context) ([]textcmd.Trigger, error) {
	var rows []triggerRow
	if err := c.db.SelectContext(ctx, &rows, selectTriggers); err != nil {
		return nil, fmt.Errorf("select triggers: %w", err)
	}
	triggers := make([]textcmd.Trigger, 0, len(rows))
	for _, row := range rows {
		triggers = append(triggers, textcmd.Trigger{
			ID:      row.ID,
			Keyword: row.Keyword,
			Match:   parseMatchType(row.Match),
			Reply:   row.template(),
		})
	}
	return triggers, nil
}

func parseMatchType(raw string) textcmd.MatchType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "exact":
		return textcmd.MatchExact
	case "contains":
		return textcmd.MatchContains
	default:
		// Unknown rows never match rather than failing the whole scan.
		return textcmd.MatchType("")
	}
}
