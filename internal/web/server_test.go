package web

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/brainquiz/internal/domain"
	"github.com/conorfennell/brainquiz/internal/knol"
	"github.com/conorfennell/brainquiz/internal/lookup"
	"github.com/conorfennell/brainquiz/internal/scheduler"
	"github.com/conorfennell/brainquiz/internal/storage"
	"github.com/conorfennell/brainquiz/internal/sync"
)

var now = time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)

func newTestServer(t *testing.T, questions []string, opts ...Option) (*Server, *scheduler.Scheduler) {
	t.Helper()
	store, err := storage.OpenJSON(t.TempDir())
	if err != nil {
		t.Fatalf("OpenJSON() returned an unexpected error: %v", err)
	}
	sched, err := scheduler.New(context.Background(), store, scheduler.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("scheduler.New() returned an unexpected error: %v", err)
	}
	var cards []domain.Card
	for _, q := range questions {
		cards = append(cards, domain.Card{Question: q, Answer: "answer to " + q, Topic: "General"})
	}
	if _, err := sched.Import(context.Background(), cards); err != nil {
		t.Fatalf("Import() returned an unexpected error: %v", err)
	}

	srv, err := NewServer(sched, opts...)
	if err != nil {
		t.Fatalf("NewServer() returned an unexpected error: %v", err)
	}
	return srv, sched
}

func do(srv http.Handler, method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestIndexAndDeck(t *testing.T) {
	srv, _ := newTestServer(t, []string{"Q1", "Q2"})

	rec := do(srv, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "BrainQuiz") {
		t.Errorf("Expected the index page, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(srv, http.MethodGet, "/deck", nil)
	if !strings.Contains(rec.Body.String(), "2 of 2 cards are due.") {
		t.Errorf("Unexpected deck: %s", rec.Body.String())
	}
}

func TestReviewFlow(t *testing.T) {
	srv, sched := newTestServer(t, []string{"Q1", "Q2"})
	q1, q2 := string(knol.ID("Q1")), string(knol.ID("Q2"))

	rec := do(srv, http.MethodGet, "/review/next", nil)
	body := rec.Body.String()
	if !strings.Contains(body, "Q1") || strings.Contains(body, "answer to Q1") {
		t.Fatalf("Expected the front of Q1, got %s", body)
	}

	rec = do(srv, http.MethodGet, "/review/answer/"+q1, nil)
	if !strings.Contains(rec.Body.String(), "answer to Q1") {
		t.Fatalf("Expected the back of Q1, got %s", rec.Body.String())
	}

	rec = do(srv, http.MethodPost, "/review/"+q1, url.Values{"correct": {"true"}})
	body = rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "/review/answer/"+q2) {
		t.Fatalf("Expected Q2 next, got %d: %s", rec.Code, body)
	}
	if !strings.Contains(body, `hx-swap-oob="true">1</span>`) {
		t.Errorf("Expected the streak badge to update, got %s", body)
	}

	card, _ := sched.Card(domain.CardID(q1))
	if card.Level != 1 || card.NextReview == nil || !card.NextReview.Equal(now.AddDate(0, 0, 1)) {
		t.Errorf("Unexpected card after a correct answer: %+v", card)
	}

	rec = do(srv, http.MethodPost, "/review/"+q2, url.Values{"correct": {"false"}})
	body = rec.Body.String()
	if !strings.Contains(body, "No cards due") {
		t.Errorf("Expected the empty deck, got %s", body)
	}
	if strings.Contains(body, "hx-swap-oob") {
		t.Errorf("A wrong answer must not touch the streak: %s", body)
	}
	if sched.Stats().Streak != 1 {
		t.Errorf("Expected streak 1, got %d", sched.Stats().Streak)
	}
}

func TestReviewErrors(t *testing.T) {
	srv, _ := newTestServer(t, []string{"Q1"})
	q1 := string(knol.ID("Q1"))

	testCases := []struct {
		name   string
		method string
		target string
		form   url.Values
		want   int
	}{
		{"bad answer", http.MethodPost, "/review/" + q1, url.Values{"correct": {"maybe"}}, http.StatusBadRequest},
		{"unknown card", http.MethodPost, "/review/nope", url.Values{"correct": {"true"}}, http.StatusNotFound},
		{"unknown answer", http.MethodGet, "/review/answer/nope", nil, http.StatusNotFound},
		{"wrong method", http.MethodPost, "/deck", url.Values{}, http.StatusMethodNotAllowed},
		{"lookup disabled", http.MethodPost, "/lookup", url.Values{"q": {"Go"}}, http.StatusServiceUnavailable},
		{"sync disabled", http.MethodPost, "/sync", url.Values{}, http.StatusServiceUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := do(srv, tc.method, tc.target, tc.form); rec.Code != tc.want {
				t.Errorf("Expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestReviewRejectsCardNotDue(t *testing.T) {
	srv, sched := newTestServer(t, []string{"Q1", "Q2"})
	q1 := string(knol.ID("Q1"))

	if rec := do(srv, http.MethodPost, "/review/"+q1, url.Values{"correct": {"true"}}); rec.Code != http.StatusOK {
		t.Fatalf("Expected the first answer to be recorded, got %d: %s", rec.Code, rec.Body.String())
	}

	rec := do(srv, http.MethodPost, "/review/"+q1, url.Values{"correct": {"true"}})
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected %d for a card that is not due, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
	card, _ := sched.Card(domain.CardID(q1))
	if card.Level != 1 || !card.NextReview.Equal(now.AddDate(0, 0, 1)) {
		t.Errorf("A rejected answer must not change the card: %+v", card)
	}
	if sched.DueCount() != 1 {
		t.Errorf("Expected Q2 to stay due, got %d due", sched.DueCount())
	}
}

func upload(t *testing.T, srv http.Handler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestImport(t *testing.T) {
	srv, sched := newTestServer(t, []string{"Q1"})

	rec := upload(t, srv, "deck.json", `[{"question": "Q1", "answer": "dup"}, {"question": "Q2", "answer": "A2"}, {"question": "Q2", "answer": "dup"}]`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Imported 1 new cards from deck.json (2 already known)") {
		t.Errorf("Unexpected import result %d: %s", rec.Code, rec.Body.String())
	}

	rec = upload(t, srv, "deck.md", "Q: Q3\nA: A3\n")
	if rec.Code != http.StatusOK || sched.Total() != 3 {
		t.Errorf("Expected the markdown card to be added, got %d with %d cards", rec.Code, sched.Total())
	}

	for name, content := range map[string]string{
		"broken.json": `{"question": "not an array"}`,
		"deck.csv":    "Q4,A4",
	} {
		rec = upload(t, srv, name, content)
		if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "Could not read") {
			t.Errorf("%s: expected a rejected import, got %d: %s", name, rec.Code, rec.Body.String())
		}
	}
	if sched.Total() != 3 {
		t.Errorf("A rejected import must not change the collection, got %d cards", sched.Total())
	}
}

type fakeLooker struct {
	res lookup.Result
	err error
}

func (f fakeLooker) Summary(_ context.Context, q string) (lookup.Result, error) {
	if strings.TrimSpace(q) == "" {
		return lookup.Result{}, lookup.ErrEmptyQuery
	}
	return f.res, f.err
}

func TestLookup(t *testing.T) {
	testCases := []struct {
		name   string
		looker fakeLooker
		query  string
		code   int
		want   string
	}{
		{
			name:   "summary",
			looker: fakeLooker{res: lookup.Result{Kind: lookup.KindSummary, Title: "Ankara", Text: "Ankara is the capital."}},
			query:  "Ankara",
			code:   http.StatusOK,
			want:   "Ankara is the capital.",
		},
		{
			name:   "ambiguous",
			looker: fakeLooker{res: lookup.Result{Kind: lookup.KindAmbiguous, Options: []string{"Mercury (planet)"}}},
			query:  "Mercury",
			code:   http.StatusOK,
			want:   "<li>Mercury (planet)</li>",
		},
		{
			name:   "not found",
			looker: fakeLooker{res: lookup.Result{Kind: lookup.KindNotFound}},
			query:  "zzz",
			code:   http.StatusOK,
			want:   "No Wikipedia page",
		},
		{
			name:   "transport error",
			looker: fakeLooker{err: errors.New("timeout")},
			query:  "Go",
			code:   http.StatusBadGateway,
			want:   "Lookup failed: timeout",
		},
		{
			name:  "empty",
			query: " ",
			code:  http.StatusBadRequest,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, nil, WithLookup(tc.looker))
			rec := do(srv, http.MethodPost, "/lookup", url.Values{"q": {tc.query}})
			if rec.Code != tc.code {
				t.Fatalf("Expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Errorf("Expected %q in %s", tc.want, rec.Body.String())
			}
		})
	}
}

func TestSyncAndStats(t *testing.T) {
	called := 0
	syncFn := func(context.Context) (sync.Report, error) {
		called++
		return sync.Report{Sources: 2, Files: 3, Added: 4, Skipped: 1}, nil
	}
	srv, _ := newTestServer(t, []string{"Q1"}, WithSync(syncFn))

	rec := do(srv, http.MethodPost, "/sync", url.Values{})
	if called != 1 || !strings.Contains(rec.Body.String(), "Synced 2 sources: 4 new cards from 3 files, 1 already known.") {
		t.Errorf("Unexpected sync response: %s", rec.Body.String())
	}

	rec = do(srv, http.MethodGet, "/stats", nil)
	body := rec.Body.String()
	for _, want := range []string{"<dd>0 days</dd>", "<dd>never</dd>", "<dd>1</dd>"} {
		if !strings.Contains(body, want) {
			t.Errorf("Expected %q in %s", want, body)
		}
	}
}
