package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

type fakeNotifier struct {
	name string
	err  error
	got  chan *Message
}

func (f *fakeNotifier) Name() string { return f.name }

func (f *fakeNotifier) Notify(ctx context.Context, msg *Message) error {
	f.got <- msg
	return f.err
}

func TestFanoutCountsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	ok1 := &fakeNotifier{name: "a", got: make(chan *Message, 1)}
	ok2 := &fakeNotifier{name: "b", got: make(chan *Message, 1)}
	bad := &fakeNotifier{name: "c", err: errors.New("boom"), got: make(chan *Message, 1)}

	msg := &Message{Title: "hw1", Text: "alice scored 10"}
	stats := NewFanout(zap.NewNop(), ok1, bad, ok2).Deliver(context.Background(), msg)
	require.Equal(t, Stats{Delivered: 2, Failed: 1}, stats)
	for _, n := range []*fakeNotifier{ok1, ok2, bad} {
		require.Same(t, msg, <-n.got)
	}
}

func TestEmptyFanout(t *testing.T) {
	defer goleak.VerifyNone(t)

	stats := NewFanout(zap.NewNop()).Deliver(context.Background(), &Message{Text: "x"})
	require.Equal(t, Stats{}, stats)
}

func TestMattermost(t *testing.T) {
	var payload mattermostPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	mm := NewMattermost(srv.URL+"/hooks/abc", "grading", "scoreledger")
	err := mm.Notify(context.Background(), &Message{Title: "hw1", Text: "alice scored 10", Link: "https://ci/run/1"})
	require.NoError(t, err)
	require.Equal(t, mattermostPayload{
		Channel:  "grading",
		Username: "scoreledger",
		Text:     "#### hw1\nalice scored 10\nhttps://ci/run/1",
	}, payload)
}

func TestMattermostError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such hook", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewMattermost(srv.URL, "", "").Notify(context.Background(), &Message{Text: "x"})
	require.Error(t, err)
}

func TestTelegram(t *testing.T) {
	var sent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bottoken/getMe":
			fmt.Fprint(w, `{"ok": true, "result": {"id": 1, "is_bot": true, "first_name": "ledger", "username": "ledger_bot"}}`)
		case "/bottoken/sendMessage":
			sent = r.PostForm.Get("text")
			require.Equal(t, "42", r.PostForm.Get("chat_id"))
			fmt.Fprint(w, `{"ok": true, "result": {"message_id": 1, "date": 0, "chat": {"id": 42, "type": "private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	tg, err := newTelegram("token", srv.URL+"/bot%s/%s", 42)
	require.NoError(t, err)
	require.NoError(t, tg.Notify(context.Background(), &Message{Title: "hw1", Text: "alice scored 10"}))
	require.Equal(t, "hw1\nalice scored 10", sent)
}
