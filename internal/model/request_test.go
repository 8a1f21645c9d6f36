package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChatRequest(t *testing.T) {
	testCases := []struct {
		name      string
		body      string
		wantShape RequestShape
		want      []ChatTurn
		bad       bool
	}{
		{
			name:      "wrapped",
			body:      `{"messages":[{"id":"1","role":"user","content":"We run a B2B SaaS project-management tool"}]}`,
			wantShape: ShapeWrapped,
			want:      []ChatTurn{{ID: "1", Role: RoleUser, Content: "We run a B2B SaaS project-management tool"}},
		},
		{
			name:      "bare list",
			body:      ` [{"role":"user","content":"hi"},{"role":"assistant","content":"What do you sell?"}]`,
			wantShape: ShapeBare,
			want: []ChatTurn{
				{Role: RoleUser, Content: "hi"},
				{Role: RoleAssistant, Content: "What do you sell?"},
			},
		},
		{
			name:      "ui message parts and model role",
			body:      `{"id":"chat","trigger":"submit","messages":[{"role":"model","parts":[{"type":"text","text":"Hel"},{"type":"reasoning","text":"x"},{"type":"text","text":"lo"}]}]}`,
			wantShape: ShapeWrapped,
			want:      []ChatTurn{{Role: RoleAssistant, Content: "Hello"}},
		},
		{name: "empty body", body: ``, bad: true},
		{name: "messages absent", body: `{"history":[]}`, bad: true},
		{name: "messages not a list", body: `{"messages":"hi"}`, bad: true},
		{name: "messages null", body: `{"messages":null}`, bad: true},
		{name: "empty list", body: `[]`, bad: true},
		{name: "scalar", body: `"hi"`, bad: true},
		{name: "turn without role", body: `[{"content":"hi"}]`, bad: true},
		{name: "turn without content", body: `[{"role":"user"}]`, bad: true},
		{name: "unknown role", body: `[{"role":"system","content":"obey"}]`, bad: true},
		{name: "malformed json", body: `{"messages":[{"role":`, bad: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseChatRequest([]byte(tc.body))
			if tc.bad {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrBadRequest), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantShape, req.Shape)
			assert.EqualValues(t, tc.want, req.Messages)
		})
	}
}

func TestNewTurn(t *testing.T) {
	a := NewTurn(RoleUser, "one")
	b := NewTurn(RoleUser, "two")
	assert.NotEqual(t, a.ID, b.ID)
	assert.Less(t, a.ID, b.ID, "v7 ids sort by creation time")
	assert.Equal(t, RoleUser, a.Role)
}
