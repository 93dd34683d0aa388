package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakePending struct {
	due       int
	reloads   int
	reloadErr error
}

func (f *fakePending) Reload(context.Context) error {
	f.reloads++
	return f.reloadErr
}

func (f *fakePending) DueCount() int { return f.due }

type sent struct {
	title, message string
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (r *recorder) Notify(_ context.Context, title, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{title, message})
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestMessage(t *testing.T) {
	for n, want := range map[int]string{
		1:  "1 question is waiting for you.",
		2:  "2 questions are waiting for you.",
		12: "12 questions are waiting for you.",
	} {
		if got := Message(n); got != want {
			t.Errorf("Message(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestCheckPending(t *testing.T) {
	testCases := []struct {
		name      string
		pending   *fakePending
		notifyErr error
		wantDue   int
		wantSent  int
		wantErr   bool
	}{
		{name: "nothing due", pending: &fakePending{}, wantSent: 0},
		{name: "cards due", pending: &fakePending{due: 3}, wantDue: 3, wantSent: 1},
		{name: "reload fails", pending: &fakePending{due: 3, reloadErr: errors.New("corrupt")}, wantErr: true},
		{name: "notifier fails", pending: &fakePending{due: 2}, notifyErr: errors.New("offline"), wantDue: 2, wantSent: 1, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{err: tc.notifyErr}
			due, err := CheckPending(context.Background(), tc.pending, rec)
			if (err != nil) != tc.wantErr {
				t.Fatalf("CheckPending() error = %v, wantErr %v", err, tc.wantErr)
			}
			if due != tc.wantDue {
				t.Errorf("Expected %d due, got %d", tc.wantDue, due)
			}
			if rec.count() != tc.wantSent {
				t.Fatalf("Expected %d notifications, got %d", tc.wantSent, rec.count())
			}
			if tc.wantSent == 1 && (rec.sent[0].title != Title || rec.sent[0].message != Message(tc.wantDue)) {
				t.Errorf("Unexpected notification: %+v", rec.sent[0])
			}
			if tc.pending.reloads != 1 {
				t.Errorf("Expected one reload, got %d", tc.pending.reloads)
			}
		})
	}
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{err: errors.New("boom")}
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	err := Multi{a, b, Log{Logger: logger}}.Notify(context.Background(), Title, "hi")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected the failing notifier's error, got %v", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("Expected every notifier to be called")
	}
	if !strings.Contains(buf.String(), "msg=\"Review time!\"") || !strings.Contains(buf.String(), "message=hi") {
		t.Errorf("Unexpected log output: %s", buf.String())
	}
}

func TestDesktop(t *testing.T) {
	var got sent
	d := &Desktop{send: func(title, message string) error {
		got = sent{title, message}
		return nil
	}}
	if err := d.Notify(context.Background(), "T", "M"); err != nil {
		t.Fatalf("Notify() returned an unexpected error: %v", err)
	}
	if got != (sent{"T", "M"}) {
		t.Errorf("Unexpected notification: %+v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Notify(ctx, "T", "M"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestTelegram(t *testing.T) {
	var mu sync.Mutex
	var chatID, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"quiz","username":"quiz_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			r.ParseForm()
			mu.Lock()
			chatID, text = r.FormValue("chat_id"), r.FormValue("text")
			mu.Unlock()
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tg, err := NewTelegram("TOKEN", 42, srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("NewTelegram() returned an unexpected error: %v", err)
	}
	if err := tg.Notify(context.Background(), Title, Message(3)); err != nil {
		t.Fatalf("Notify() returned an unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if chatID != "42" {
		t.Errorf("Expected chat 42, got %q", chatID)
	}
	if text != "Review time!\n3 questions are waiting for you." {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestReminder(t *testing.T) {
	t.Run("immediate check then stop", func(t *testing.T) {
		rec := &recorder{}
		r := &Reminder{
			Pending:   &fakePending{due: 1},
			Notifier:  rec,
			Schedule:  "@yearly",
			Immediate: true,
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- r.Run(ctx) }()

		deadline := time.After(2 * time.Second)
		for rec.count() == 0 {
			select {
			case <-deadline:
				t.Fatal("Expected a notification from the immediate check")
			case <-time.After(10 * time.Millisecond):
			}
		}
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run() returned an unexpected error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Run() did not return after cancel")
		}
	})

	t.Run("bad schedule", func(t *testing.T) {
		r := &Reminder{Pending: &fakePending{}, Notifier: &recorder{}, Schedule: "every now and then"}
		if err := r.Run(context.Background()); err == nil {
			t.Error("Expected an error for an invalid schedule")
		}
	})
}
