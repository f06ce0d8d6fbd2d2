package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAction() Action {
	return Action{
		Batch:  "batch-1",
		Module: "poll",
		Name:   "create_poll",
		Caller: "alice",
		Time:   1000,
		Args:   Object{"title": String("Lunch"), "options": Strings([]string{"A", "B"})},
		Seq:    1,
	}
}

func TestActionIDDeterminism(t *testing.T) {
	id1, err := ActionID(sampleAction())
	require.NoError(t, err)
	id2, err := ActionID(sampleAction())
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestActionIDChangesWithInput(t *testing.T) {
	base := MustActionID(sampleAction())

	mutations := map[string]func(*Action){
		"batch":  func(a *Action) { a.Batch = "batch-2" },
		"module": func(a *Action) { a.Module = "social" },
		"name":   func(a *Action) { a.Name = "vote" },
		"caller": func(a *Action) { a.Caller = "bob" },
		"time":   func(a *Action) { a.Time = 1001 },
		"seq":    func(a *Action) { a.Seq = 2 },
		"args":   func(a *Action) { a.Args = Object{"title": String("Dinner")} },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			a := sampleAction()
			mutate(&a)
			assert.NotEqual(t, base, MustActionID(a))
		})
	}
}

func TestActionIDIgnoresEngineVersionAndID(t *testing.T) {
	a := sampleAction()
	b := sampleAction()
	b.ID = "whatever"
	b.EngineVersion = "9.9.9"
	assert.Equal(t, MustActionID(a), MustActionID(b))
}

func TestActionIDNilArgsEqualsEmpty(t *testing.T) {
	a := sampleAction()
	a.Args = nil
	b := sampleAction()
	b.Args = Object{}
	assert.Equal(t, MustActionID(a), MustActionID(b))
}

func TestReceiptIDCoversEventsAndRoot(t *testing.T) {
	r := Receipt{
		ActionID:  "act",
		Seq:       1,
		Outcome:   OutcomeSuccess,
		Result:    Object{"poll_id": Int(1)},
		Events:    []Event{{Module: "poll", Name: "PollCreated", Fields: Object{"poll_id": Int(1)}}},
		StateRoot: "root-a",
	}
	base, err := ReceiptID(r)
	require.NoError(t, err)

	other := r
	other.StateRoot = "root-b"
	id, err := ReceiptID(other)
	require.NoError(t, err)
	assert.NotEqual(t, base, id)

	other = r
	other.Events = nil
	id, err = ReceiptID(other)
	require.NoError(t, err)
	assert.NotEqual(t, base, id)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainAction, data), hashWithDomain(DomainReceipt, data))
	assert.NotEqual(t, hashWithDomain(DomainReceipt, data), hashWithDomain(DomainStateRoot, data))
	assert.NotEqual(t, hashWithDomain(DomainStateRoot, data), hashWithDomain(DomainGenesis, data))
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	sum := sha256.Sum256([]byte("d\x00x"))
	assert.Equal(t, hex.EncodeToString(sum[:]), hashWithDomain("d", []byte("x")))
}

func TestStateRootRejectsInvalid(t *testing.T) {
	_, err := StateRoot(Object{"bad": nil})
	require.Error(t, err)

	root, err := StateRoot(Object{})
	require.NoError(t, err)
	assert.Len(t, root, 64)
}

func TestReceiptAccepted(t *testing.T) {
	assert.True(t, Receipt{Outcome: OutcomeSuccess}.Accepted())
	assert.False(t, Receipt{Outcome: "PollEnded"}.Accepted())
}
