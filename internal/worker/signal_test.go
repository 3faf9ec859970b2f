package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSignal(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Signal
	}{
		{"empty", "", Signal{Kind: SignalNone}},
		{"plain progress", "still refactoring the parser", Signal{Kind: SignalNone}},
		{"done", "nothing left\n__DONE__", Signal{Kind: SignalDone}},
		{"complete", "committed. COMPLETE_AND_READY_FOR_MERGE", Signal{Kind: SignalComplete}},
		{"claim single", "CLAIM(auth-01)", Signal{Kind: SignalClaim, TaskIDs: []string{"auth-01"}}},
		{"claim multiple with spaces", "CLAIM( auth-01 , auth-02 )", Signal{Kind: SignalClaim, TaskIDs: []string{"auth-01", "auth-02"}}},
		{"claim drops empties", "CLAIM(auth-01,,  ,auth-02)", Signal{Kind: SignalClaim, TaskIDs: []string{"auth-01", "auth-02"}}},
		{"claim empty list", "CLAIM()", Signal{Kind: SignalClaim}},
		{"done beats complete", "COMPLETE_AND_READY_FOR_MERGE\n__DONE__", Signal{Kind: SignalDone}},
		{"done beats claim", "CLAIM(a) __DONE__", Signal{Kind: SignalDone}},
		{"complete beats claim", "CLAIM(a)\nCOMPLETE_AND_READY_FOR_MERGE", Signal{Kind: SignalComplete}},
		{"case sensitive", "__done__ complete_and_ready_for_merge", Signal{Kind: SignalNone}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSignal(tt.text))
		})
	}
}

func TestClaimRegistry(t *testing.T) {
	r := NewClaimRegistry()
	r.Claim("t1", "w0")
	r.Claim("t2", "w1")

	owner, ok := r.Owner("t1")
	assert.True(t, ok)
	assert.Equal(t, "w0", owner)

	assert.False(t, r.OwnedByOther("t1", "w0"))
	assert.True(t, r.OwnedByOther("t2", "w0"))
	assert.False(t, r.OwnedByOther("t3", "w0"))

	r.Release("t1")
	_, ok = r.Owner("t1")
	assert.False(t, ok)
}
