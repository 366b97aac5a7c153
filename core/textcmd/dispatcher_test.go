package textcmd

import (
	"context"
	"errors"
	"testing"

	"github.com/klipworks/memberbot/core/dispatch"
)

type fakeContent struct {
	commands map[string]*Template
	triggers []Trigger
	cmdErr   error
	trigErr  error

	commandCalls int
	triggerCalls int
}

func (f *fakeContent) CommandTemplate(_ context.Context, name string) (*Template, error) {
	f.commandCalls++
	if f.cmdErr != nil {
		return nil, f.cmdErr
	}
	return f.commands[name], nil
}

func (f *fakeContent) Triggers(context.Context) ([]Trigger, error) {
	f.triggerCalls++
	if f.trigErr != nil {
		return nil, f.trigErr
	}
	return f.triggers, nil
}

type captureResponder struct {
	replies []dispatch.Reply
	err     error
}

func (c *captureResponder) Reply(_ context.Context, r dispatch.Reply) error {
	if c.err != nil {
		return c.err
	}
	c.replies = append(c.replies, r)
	return nil
}

func TestHandleBuiltinCommand(t *testing.T) {
	store := &fakeContent{}
	d := NewDispatcher("!", store)
	var gotArgs string
	d.Builtin("Users", func(_ context.Context, _ Message, args string, rsp dispatch.Responder) error {
		gotArgs = args
		return rsp.Reply(context.Background(), dispatch.Reply{Text: "panel"})
	})

	rsp := &captureResponder{}
	out, err := d.Handle(context.Background(), Message{UserID: "1", Text: "!USERS  extra args "}, rsp)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.Replied || out.Source != "builtin" || out.Command != "users" {
		t.Errorf("outcome = %+v", out)
	}
	if !out.DeleteInvocation {
		t.Error("builtin outcome must request removal of the invoking message")
	}
	if gotArgs != "extra args" {
		t.Errorf("args = %q", gotArgs)
	}
	if store.triggerCalls != 0 {
		t.Error("triggers evaluated after builtin match")
	}
}

func TestHandleDynamicCommand(t *testing.T) {
	store := &fakeContent{
		commands: map[string]*Template{
			"rules": {Title: "Rules", Body: "be nice", Ephemeral: true, DeleteInvocation: true},
		},
	}
	d := NewDispatcher("!", store)

	rsp := &captureResponder{}
	out, err := d.Handle(context.Background(), Message{Text: "!rules"}, rsp)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.Replied || out.Source != "command" || !out.DeleteInvocation {
		t.Errorf("outcome = %+v", out)
	}
	if len(rsp.replies) != 1 {
		t.Fatalf("replies = %d", len(rsp.replies))
	}
	r := rsp.replies[0]
	if r.View == nil || r.View.Title != "Rules" || !r.Private {
		t.Errorf("reply = %+v", r)
	}
	if store.triggerCalls != 0 {
		t.Error("triggers evaluated after command match")
	}
}

func TestHandleUnknownCommandFallsThroughToTriggers(t *testing.T) {
	store := &fakeContent{
		triggers: []Trigger{
			{ID: 1, Keyword: "nosuch", Match: MatchContains, Reply: Template{Text: "caught"}},
		},
	}
	d := NewDispatcher("!", store)

	rsp := &captureResponder{}
	out, err := d.Handle(context.Background(), Message{Text: "!nosuchcommand"}, rsp)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Source != "trigger" {
		t.Errorf("outcome = %+v, want trigger fallthrough", out)
	}
	if store.commandCalls != 1 || store.triggerCalls != 1 {
		t.Errorf("commandCalls=%d triggerCalls=%d", store.commandCalls, store.triggerCalls)
	}
}

func TestHandleTriggerMatching(t *testing.T) {
	triggers := []Trigger{
		{ID: 1, Keyword: "hello world", Match: MatchExact, Reply: Template{Text: "exact"}},
		{ID: 2, Keyword: "price", Match: MatchContains, Reply: Template{Text: "contains"}},
	}
	cases := []struct {
		name string
		text string
		want string
	}{
		{"exact match", "hello world", "exact"},
		{"exact match case-insensitive", "HELLO World", "exact"},
		{"exact does not match superset", "hello world today", ""},
		{"contains match", "what is the PRICE today", "contains"},
		{"no match", "nothing here", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDispatcher("!", &fakeContent{triggers: triggers})
			rsp := &captureResponder{}
			out, err := d.Handle(context.Background(), Message{Text: tc.text}, rsp)
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if tc.want == "" {
				if out.Replied || len(rsp.replies) != 0 {
					t.Errorf("unexpected reply: %+v", rsp.replies)
				}
				return
			}
			if len(rsp.replies) != 1 || rsp.replies[0].Text != tc.want {
				t.Errorf("replies = %+v, want %q", rsp.replies, tc.want)
			}
		})
	}
}

func TestHandleTriggerFirstMatchWins(t *testing.T) {
	store := &fakeContent{
		triggers: []Trigger{
			{ID: 1, Keyword: "sale", Match: MatchContains, Reply: Template{Text: "first"}},
			{ID: 2, Keyword: "sale", Match: MatchContains, Reply: Template{Text: "second"}},
			{ID: 3, Keyword: "big sale", Match: MatchContains, Reply: Template{Text: "third"}},
		},
	}
	d := NewDispatcher("!", store)

	rsp := &captureResponder{}
	out, err := d.Handle(context.Background(), Message{Text: "big sale today"}, rsp)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(rsp.replies) != 1 || rsp.replies[0].Text != "first" {
		t.Errorf("replies = %+v, want single reply from the first stored trigger", rsp.replies)
	}
	if out.Command != "sale" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestHandleEmptyAndBlankMessages(t *testing.T) {
	store := &fakeContent{}
	d := NewDispatcher("!", store)
	for _, text := range []string{"", "   ", "!", "!   "} {
		out, err := d.Handle(context.Background(), Message{Text: text}, &captureResponder{})
		if err != nil {
			t.Errorf("Handle(%q): %v", text, err)
		}
		if out.Replied {
			t.Errorf("Handle(%q) replied", text)
		}
	}
}

func TestHandleStoreErrors(t *testing.T) {
	d := NewDispatcher("!", &fakeContent{cmdErr: errors.New("db down")})
	if _, err := d.Handle(context.Background(), Message{Text: "!rules"}, &captureResponder{}); err == nil {
		t.Error("command lookup error swallowed")
	}

	d = NewDispatcher("!", &fakeContent{trigErr: errors.New("db down")})
	if _, err := d.Handle(context.Background(), Message{Text: "hello"}, &captureResponder{}); err == nil {
		t.Error("trigger list error swallowed")
	}
}

func TestHandleCustomPrefix(t *testing.T) {
	store := &fakeContent{commands: map[string]*Template{"faq": {Text: "faq text"}}}
	d := NewDispatcher("?", store)

	rsp := &captureResponder{}
	out, err := d.Handle(context.Background(), Message{Text: "?faq"}, rsp)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.Replied || out.Source != "command" {
		t.Errorf("outcome = %+v", out)
	}

	// The default prefix must not fire for a dispatcher configured with
	// another one.
	rsp = &captureResponder{}
	out, err = d.Handle(context.Background(), Message{Text: "!faq"}, rsp)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Source == "command" {
		t.Errorf("wrong prefix matched: %+v", out)
	}
}
