package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"scanalytics-backend/internal/client"
	"scanalytics-backend/internal/insight"
	"scanalytics-backend/internal/model"
	"scanalytics-backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedStreamer struct {
	events []insight.Event
}

func (s cannedStreamer) Stream(ctx context.Context, turns []model.ChatTurn) (<-chan insight.Event, error) {
	ch := make(chan insight.Event, len(s.events))
	for _, ev := range s.events {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func TestREPL_SubmitThenDone(t *testing.T) {
	result := insight.Result{
		Response: "Track these.",
		Queries: []insight.Proposal{
			{Name: "MRR", Description: "Monthly recurring revenue."},
			{Name: "Churn", Description: "Accounts lost per month."},
		},
	}
	st := cannedStreamer{events: []insight.Event{
		{Type: insight.EventPartial, Result: insight.Result{Response: "Track"}},
		{Type: insight.EventComplete, Result: result},
	}}
	selections := storage.NewSelectionStore(storage.NewMemoryStorage())
	sess := client.NewSession(st, selections)
	states, stop := sess.Subscribe()
	defer stop()
	<-states

	var out bytes.Buffer
	in := strings.NewReader("/done\nWe sell project software\n/done\n")
	require.NoError(t, repl(context.Background(), sess, states, in, &out))

	text := out.String()
	assert.Contains(t, text, "nothing to save yet")
	assert.Contains(t, text, "Track these.")
	assert.Contains(t, text, "1. MRR: Monthly recurring revenue.")
	assert.Contains(t, text, "saved 2 KPIs")

	sel, err := selections.Load()
	require.NoError(t, err)
	assert.Equal(t, result.Queries, sel.Queries)
}

func TestREPL_FailureShowsNotice(t *testing.T) {
	st := cannedStreamer{events: []insight.Event{{Type: insight.EventError, Err: client.ErrStreamFailed}}}
	sess := client.NewSession(st, storage.NewSelectionStore(storage.NewMemoryStorage()))
	states, stop := sess.Subscribe()
	defer stop()
	<-states

	var out bytes.Buffer
	require.NoError(t, repl(context.Background(), sess, states, strings.NewReader("hi\n/quit\n"), &out))
	assert.Contains(t, out.String(), client.FailureNotice)
}

func TestProgress_TruncatesLongResponses(t *testing.T) {
	got := progress(insight.Result{Response: strings.Repeat("a", 100) + "\nend", Queries: []insight.Proposal{{Name: "x"}}})
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, " end [1 KPIs]"))
}
