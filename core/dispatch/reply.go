package dispatch

import "context"

// View describes optional structured display content attached to a reply.
// The transport decides how to render it (formatted message, media, etc).
type View struct {
	Title        string
	Body         string
	Color        string
	ImageURL     string
	ThumbnailURL string
}

// Button is a single interactive element attached to a reply. Either
// Action (a wire identifier dispatched back through the router) or URL
// is set, never both.
type Button struct {
	Label  string
	Action string
	URL    string
}

// Reply is the single terminal payload a handler produces for an event.
// Private replies are directed to the invoking user rather than the
// originating channel.
type Reply struct {
	Text    string
	Private bool
	View    *View
	Buttons []Button
}

// Responder delivers replies back to the platform. Implementations must
// tolerate being called at most once per event.
type Responder interface {
	Reply(ctx context.Context, r Reply) error
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, r Reply) error

// Reply executes the underlying function.
func (f ResponderFunc) Reply(ctx context.Context, r Reply) error {
	return f(ctx, r)
}
