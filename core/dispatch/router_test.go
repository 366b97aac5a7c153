package dispatch

import (
	"context"
	"errors"
	"testing"
)

type captureResponder struct {
	replies []Reply
	err     error
}

func (c *captureResponder) Reply(_ context.Context, r Reply) error {
	if c.err != nil {
		return c.err
	}
	c.replies = append(c.replies, r)
	return nil
}

func TestDispatchActionExactMatch(t *testing.T) {
	r := NewRouter()
	var got Event
	if err := r.HandleAction("reg.open", func(_ context.Context, ev Event, rsp Responder) error {
		got = ev
		return rsp.Reply(context.Background(), Reply{Text: "ok"})
	}); err != nil {
		t.Fatal(err)
	}
	// An action id that merely prefixes another must not match it.
	if err := r.HandleAction("reg.open.extra", func(context.Context, Event, Responder) error {
		t.Error("longer id handler invoked")
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	rsp := &captureResponder{}
	ev := Event{Kind: KindAction, ID: "reg.open", UserID: "42", DisplayName: "alice"}
	if err := r.Dispatch(context.Background(), ev, rsp); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got.UserID != "42" || got.DisplayName != "alice" {
		t.Errorf("handler saw %+v", got)
	}
	if len(rsp.replies) != 1 || rsp.replies[0].Text != "ok" {
		t.Errorf("replies = %+v", rsp.replies)
	}
}

func TestDispatchFormPrefixMatch(t *testing.T) {
	r := NewRouter()
	var gotSubject string
	var gotFields map[string]string
	if err := r.HandleForm("form.verify_", func(_ context.Context, ev Event, subject string, _ Responder) error {
		gotSubject = subject
		gotFields = ev.Fields
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	ev := Event{
		Kind:   KindForm,
		ID:     "form.verify_123",
		UserID: "123",
		Fields: map[string]string{"code": "556677"},
	}
	if err := r.Dispatch(context.Background(), ev, &captureResponder{}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gotSubject != "123" {
		t.Errorf("subject = %q, want 123", gotSubject)
	}
	if gotFields["code"] != "556677" {
		t.Errorf("fields = %v", gotFields)
	}
}

func TestDispatchUnknownIDSilent(t *testing.T) {
	r := NewRouter()
	rsp := &captureResponder{}

	for _, ev := range []Event{
		{Kind: KindAction, ID: "nope"},
		{Kind: KindForm, ID: "nope_1"},
		{Kind: KindForm, ID: "malformed-no-separator"},
	} {
		if err := r.Dispatch(context.Background(), ev, rsp); err != nil {
			t.Errorf("unknown id %q returned error: %v", ev.ID, err)
		}
	}
	if len(rsp.replies) != 0 {
		t.Errorf("unknown ids produced replies: %+v", rsp.replies)
	}
}

func TestDispatchHandlerErrorSendsOneFailureReply(t *testing.T) {
	r := NewRouter(WithFailureText("failure"))
	boom := errors.New("boom")
	if err := r.HandleAction("bad", func(context.Context, Event, Responder) error {
		return boom
	}); err != nil {
		t.Fatal(err)
	}

	rsp := &captureResponder{}
	err := r.Dispatch(context.Background(), Event{Kind: KindAction, ID: "bad"}, rsp)
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch error = %v, want boom", err)
	}
	if len(rsp.replies) != 1 {
		t.Fatalf("replies = %d, want exactly one failure reply", len(rsp.replies))
	}
	if rsp.replies[0].Text != "failure" || !rsp.replies[0].Private {
		t.Errorf("failure reply = %+v", rsp.replies[0])
	}
}

func TestDispatchHandlerErrorAfterReplySendsNothingMore(t *testing.T) {
	r := NewRouter()
	if err := r.HandleAction("partial", func(ctx context.Context, _ Event, rsp Responder) error {
		if err := rsp.Reply(ctx, Reply{Text: "first"}); err != nil {
			return err
		}
		return errors.New("late failure")
	}); err != nil {
		t.Fatal(err)
	}

	rsp := &captureResponder{}
	if err := r.Dispatch(context.Background(), Event{Kind: KindAction, ID: "partial"}, rsp); err == nil {
		t.Fatal("handler error swallowed")
	}
	if len(rsp.replies) != 1 || rsp.replies[0].Text != "first" {
		t.Errorf("replies = %+v, want only the handler's own reply", rsp.replies)
	}
}

func TestDispatchHandlerPanicContained(t *testing.T) {
	r := NewRouter()
	if err := r.HandleForm("form.payment_", func(context.Context, Event, string, Responder) error {
		panic("handler bug")
	}); err != nil {
		t.Fatal(err)
	}

	rsp := &captureResponder{}
	err := r.Dispatch(context.Background(), Event{Kind: KindForm, ID: "form.payment_42"}, rsp)
	if err == nil {
		t.Fatal("panic not surfaced as error")
	}
	if len(rsp.replies) != 1 {
		t.Errorf("expected one failure reply after panic, got %d", len(rsp.replies))
	}
}

func TestDispatchFailureReplyBestEffort(t *testing.T) {
	r := NewRouter()
	boom := errors.New("boom")
	if err := r.HandleAction("bad", func(context.Context, Event, Responder) error {
		return boom
	}); err != nil {
		t.Fatal(err)
	}

	rsp := &captureResponder{err: errors.New("send failed")}
	err := r.Dispatch(context.Background(), Event{Kind: KindAction, ID: "bad"}, rsp)
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch error = %v, want handler error despite reply failure", err)
	}
}

func TestRegistrationValidation(t *testing.T) {
	r := NewRouter()
	if err := r.HandleAction("a", func(context.Context, Event, Responder) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := r.HandleAction("a", func(context.Context, Event, Responder) error { return nil }); err == nil {
		t.Error("duplicate action accepted")
	}
	if err := r.HandleForm("no-trailing-sep", func(context.Context, Event, string, Responder) error { return nil }); err == nil {
		t.Error("form key without trailing separator accepted")
	}
	if err := r.HandleForm("f_", func(context.Context, Event, string, Responder) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := r.HandleForm("f_", func(context.Context, Event, string, Responder) error { return nil }); err == nil {
		t.Error("duplicate form key accepted")
	}
}

func TestListRegistered(t *testing.T) {
	r := NewRouter()
	for _, id := range []string{"b", "a", "c"} {
		if err := r.HandleAction(id, func(context.Context, Event, Responder) error { return nil }); err != nil {
			t.Fatal(err)
		}
	}
	got := r.ListActions()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("ListActions = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListActions = %v, want %v", got, want)
		}
	}
}
