package history_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mimic-swap/pkg/history"
	"mimic-swap/pkg/protocol"
	"mimic-swap/pkg/timeline"
)

type (
	stubCreator struct {
		sig string
		err error
	}

	stubIntents struct {
		execs []protocol.Execution
	}

	noSigner struct{}
)

const historyFile = "/home/user/.mimic-swap-history.json"

var user = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func (s *stubCreator) Manifest(context.Context, string) (protocol.Manifest, error) {
	return protocol.Manifest(`{}`), nil
}

func (s *stubCreator) SignAndCreate(
	_ context.Context, spec protocol.ConfigSpec, _ protocol.Signer,
) (*protocol.Config, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &protocol.Config{ConfigSpec: spec, Sig: s.sig}, nil
}

func (s *stubIntents) Executions(context.Context, string) ([]protocol.Execution, error) {
	return s.execs, nil
}

func (s *stubIntents) IntentByHash(_ context.Context, hash string) (*protocol.Intent, error) {
	return &protocol.Intent{Hash: hash, Status: protocol.IntentCreated}, nil
}

func (noSigner) Address() common.Address { return user }

func (noSigner) SignMessage(string) (string, error) { return "", nil }

func (noSigner) SignTypedData(apitypes.TypedData) (string, error) { return "", nil }

func newStorage(t *testing.T, fs afero.Fs) *history.Storage {
	t.Helper()
	s, err := history.NewStorage(fs, historyFile)
	require.NoError(t, err)
	return s
}

func inputs() timeline.Inputs {
	return timeline.Inputs{
		FromToken:   timeline.Token{ChainID: 10, Decimals: 6},
		ToToken:     timeline.Token{ChainID: 10, Decimals: 18},
		FromAmount:  "100",
		ToAmount:    "0.0398",
		Slippage:    "0.5",
		UserAddress: &user,
		IsVisible:   true,
		ResetKey:    1,
	}
}

func state(statuses ...timeline.Status) timeline.State {
	ids := []timeline.StepID{"approval", "config", "intent"}
	var s timeline.State
	for i, st := range statuses {
		step := timeline.SwapStep{ID: ids[i], Status: st}
		if st == timeline.StatusError {
			step.Description = "Intent was discarded or expired"
			step.Error = "Intent status: expired"
		}
		s.Steps = append(s.Steps, step)
	}
	return s
}

func TestStoragePersistsAcrossInstances(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newStorage(t, fs)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(&history.Attempt{
		ID: "aaaa-1", Created: base, ConfigSig: "0xsig1", Status: history.StatusRunning,
	}))
	require.NoError(t, s.Create(&history.Attempt{
		ID: "bbbb-2", Created: base.Add(time.Minute), ConfigSig: "0xSIG2", Status: history.StatusFailed,
	}))
	assert.Error(t, s.Create(&history.Attempt{ID: "aaaa-1"}))

	exists, err := afero.Exists(fs, historyFile+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	reloaded := newStorage(t, fs)
	list := reloaded.List()
	require.Len(t, list, 2)
	assert.Equal(t, "bbbb-2", list[0].ID)
	assert.Equal(t, "aaaa-1", list[1].ID)

	a, err := reloaded.Get("bbbb")
	require.NoError(t, err)
	assert.Equal(t, history.StatusFailed, a.Status)

	a, err = reloaded.FindBySig("0xsig2")
	require.NoError(t, err)
	assert.Equal(t, "bbbb-2", a.ID)

	_, err = reloaded.Get("cccc")
	assert.ErrorIs(t, err, history.ErrAttemptNotFound)

	assert.Len(t, reloaded.ListByStatus(history.StatusRunning), 1)
}

func TestStorageUpdate(t *testing.T) {
	s := newStorage(t, afero.NewMemMapFs())

	err := s.Update(&history.Attempt{ID: "missing"})
	assert.ErrorIs(t, err, history.ErrAttemptNotFound)

	a := &history.Attempt{ID: "x", Status: history.StatusRunning}
	require.NoError(t, s.Create(a))
	a.Status = history.StatusCompleted
	assert.False(t, mustGet(t, s, "x").IsFinal())

	require.NoError(t, s.Update(a))
	assert.True(t, mustGet(t, s, "x").IsFinal())
}

func TestStorageAmbiguousPrefix(t *testing.T) {
	s := newStorage(t, afero.NewMemMapFs())
	require.NoError(t, s.Create(&history.Attempt{ID: "ab1"}))
	require.NoError(t, s.Create(&history.Attempt{ID: "ab2"}))

	_, err := s.Get("ab")
	assert.Error(t, err)
}

func TestStorageRejectsCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, historyFile, []byte("{"), 0600))

	_, err := history.NewStorage(fs, historyFile)
	assert.Error(t, err)
}

func TestRecorderTracksAttempt(t *testing.T) {
	s := newStorage(t, afero.NewMemMapFs())
	rec := history.NewRecorder(s, zerolog.Nop())
	ctx := context.Background()

	rec.Begin("USDC", "WETH", inputs())
	_, ok := rec.Current()
	assert.False(t, ok)
	rec.Observe(state(timeline.StatusCompleted, timeline.StatusLoading))
	assert.Empty(t, s.List())

	creator := rec.Creator(&stubCreator{sig: "0xsig"})
	_, err := creator.SignAndCreate(ctx, protocol.ConfigSpec{}, noSigner{})
	require.NoError(t, err)

	cur, ok := rec.Current()
	require.True(t, ok)
	assert.Equal(t, "0xsig", cur.ConfigSig)
	assert.Equal(t, history.StatusRunning, cur.Status)
	assert.Equal(t, "USDC", cur.FromSymbol)
	assert.Equal(t, user.Hex(), cur.User)

	intents := rec.Intents(&stubIntents{execs: []protocol.Execution{
		{ID: "e1", ConfigSig: "0xsig", Outputs: []protocol.Output{{Hash: "0xintent"}}},
	}})
	_, err = intents.Executions(ctx, "0xother")
	require.NoError(t, err)
	assert.Empty(t, mustGet(t, s, cur.ID).IntentHash)

	_, err = intents.Executions(ctx, "0xsig")
	require.NoError(t, err)
	assert.Equal(t, "0xintent", mustGet(t, s, cur.ID).IntentHash)

	rec.Observe(state(timeline.StatusCompleted, timeline.StatusCompleted, timeline.StatusLoading))
	assert.Equal(t, history.StatusRunning, mustGet(t, s, cur.ID).Status)

	rec.Observe(state(timeline.StatusCompleted, timeline.StatusCompleted, timeline.StatusError))
	got := mustGet(t, s, cur.ID)
	assert.Equal(t, history.StatusFailed, got.Status)
	assert.Equal(t, "intent", got.Step)
	assert.Equal(t, "Intent status: expired", got.Error)

	// final attempts are not rewritten
	rec.Observe(state(timeline.StatusCompleted, timeline.StatusCompleted, timeline.StatusCompleted))
	assert.Equal(t, history.StatusFailed, mustGet(t, s, cur.ID).Status)
}

func TestRecorderNewEpochStartsNewAttempt(t *testing.T) {
	s := newStorage(t, afero.NewMemMapFs())
	rec := history.NewRecorder(s, zerolog.Nop())
	ctx := context.Background()

	rec.Begin("USDC", "WETH", inputs())
	_, err := rec.Creator(&stubCreator{sig: "0xa"}).SignAndCreate(ctx, protocol.ConfigSpec{}, noSigner{})
	require.NoError(t, err)

	rec.Begin("USDC", "WETH", inputs())
	rec.Observe(state(timeline.StatusCompleted, timeline.StatusCompleted, timeline.StatusCompleted))
	_, err = rec.Creator(&stubCreator{sig: "0xb"}).SignAndCreate(ctx, protocol.ConfigSpec{}, noSigner{})
	require.NoError(t, err)
	rec.Observe(state(timeline.StatusCompleted, timeline.StatusCompleted, timeline.StatusCompleted))

	first, err := s.FindBySig("0xa")
	require.NoError(t, err)
	assert.Equal(t, history.StatusRunning, first.Status)

	second, err := s.FindBySig("0xb")
	require.NoError(t, err)
	assert.Equal(t, history.StatusCompleted, second.Status)
}

func TestRecorderIgnoresFailedSubmission(t *testing.T) {
	s := newStorage(t, afero.NewMemMapFs())
	rec := history.NewRecorder(s, zerolog.Nop())

	rec.Begin("USDC", "WETH", inputs())
	boom := errors.New("boom")
	_, err := rec.Creator(&stubCreator{err: boom}).
		SignAndCreate(context.Background(), protocol.ConfigSpec{}, noSigner{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.List())
}

func mustGet(t *testing.T, s *history.Storage, id string) *history.Attempt {
	t.Helper()
	a, err := s.Get(id)
	require.NoError(t, err)
	return a
}
