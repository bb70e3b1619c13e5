package spooler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoangnt/dialout/internal/callfile"
	"github.com/hoangnt/dialout/internal/callspec"
	"github.com/hoangnt/dialout/internal/spooler/domain"
)

type fakeStore struct {
	call     *domain.Call
	claimErr error

	spooled  []string
	failed   []string
	released []string
}

func (f *fakeStore) ClaimCall(ctx context.Context, callID, workerID string) (*domain.Call, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return f.call, nil
}

func (f *fakeStore) MarkSpooled(ctx context.Context, callID, spoolFilename string) error {
	f.spooled = append(f.spooled, spoolFilename)
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, callID, errorMsg string) error {
	f.failed = append(f.failed, errorMsg)
	return nil
}

func (f *fakeStore) Release(ctx context.Context, callID, errorMsg string) error {
	f.released = append(f.released, errorMsg)
	return nil
}

func (f *fakeStore) ResetStaleClaims(ctx context.Context, cutoff time.Duration) (int64, error) {
	return 0, nil
}

type fakeUsers struct {
	known     map[string]*callfile.Account
	denyChown bool
}

func (f *fakeUsers) Lookup(name string) (*callfile.Account, error) {
	if acct, ok := f.known[name]; ok {
		return acct, nil
	}
	return nil, fmt.Errorf("%w: %q", callfile.ErrNoUser, name)
}

func (f *fakeUsers) Chown(path string, acct *callfile.Account) error {
	if f.denyChown {
		return fmt.Errorf("%w: chown %s", callfile.ErrNoUserPermission, path)
	}
	return nil
}

func testWorker(t *testing.T, store CallStore, users callfile.UserDirectory) *Worker {
	t.Helper()
	return NewWorker(&Config{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:       store,
		Concurrency: 1,
		Spool: SpoolSettings{
			SpoolDir: t.TempDir(),
			TempDir:  t.TempDir(),
		},
		Users: users,
	})
}

func pendingCall(t *testing.T, spec callspec.Spec, attempt, maxAttempts int) *domain.Call {
	t.Helper()
	payload, err := json.Marshal(spec)
	require.NoError(t, err)
	return &domain.Call{
		CallID:       "0d1f2b34-5678-49ab-8cde-f01234567890",
		Payload:      string(payload),
		Status:       domain.CallStatusSpooling,
		AttemptCount: attempt,
		MaxAttempts:  maxAttempts,
	}
}

func playbackSpec() callspec.Spec {
	return callspec.Spec{
		Channel: "SIP/flowroute/15558675309",
		Action:  callspec.Action{Type: callspec.ActionApplication, Application: "Playback", Data: "hello-world"},
	}
}

func TestProcessCall_Success(t *testing.T) {
	store := &fakeStore{call: pendingCall(t, playbackSpec(), 1, 3)}
	w := testWorker(t, store, nil)

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: store.call.CallID})
	require.NoError(t, err)

	require.Len(t, store.spooled, 1)
	assert.Equal(t, store.call.CallID+".call", store.spooled[0])
	assert.Empty(t, store.failed)
	assert.Empty(t, store.released)

	data, err := os.ReadFile(filepath.Join(w.spool.SpoolDir, store.spooled[0]))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Channel: SIP/flowroute/15558675309")
	assert.Contains(t, string(data), "Application: Playback")
}

func TestProcessCall_Scheduled(t *testing.T) {
	spec := playbackSpec()
	when := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	spec.ScheduledAt = &when

	store := &fakeStore{call: pendingCall(t, spec, 1, 3)}
	w := testWorker(t, store, nil)

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: store.call.CallID})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(w.spool.SpoolDir, store.call.CallID+".call"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(when))
}

func TestProcessCall_AlreadyClaimed(t *testing.T) {
	store := &fakeStore{claimErr: domain.ErrCallAlreadyClaimed}
	w := testWorker(t, store, nil)

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: "x"})
	assert.NoError(t, err)
	assert.Empty(t, store.spooled)
	assert.Empty(t, store.failed)
}

func TestProcessCall_InvalidPayload(t *testing.T) {
	store := &fakeStore{call: &domain.Call{
		CallID:      "bad",
		Payload:     "{not json",
		MaxAttempts: 3,
	}}
	w := testWorker(t, store, nil)

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: "bad"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.False(t, shouldRequeue(err))
	assert.Len(t, store.failed, 1)
}

func TestProcessCall_ValidationFailure(t *testing.T) {
	spec := playbackSpec()
	spec.Channel = ""

	store := &fakeStore{call: pendingCall(t, spec, 1, 3)}
	w := testWorker(t, store, nil)

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: store.call.CallID})
	require.Error(t, err)
	assert.ErrorIs(t, err, callfile.ErrValidation)
	assert.False(t, shouldRequeue(err))
	assert.Len(t, store.failed, 1)
	assert.Empty(t, store.released)
}

func TestProcessCall_UnknownOwner(t *testing.T) {
	spec := playbackSpec()
	spec.Owner = "no-such-account"

	store := &fakeStore{call: pendingCall(t, spec, 1, 3)}
	w := testWorker(t, store, &fakeUsers{})

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: store.call.CallID})
	require.Error(t, err)
	assert.ErrorIs(t, err, callfile.ErrNoUser)
	assert.False(t, shouldRequeue(err))
	assert.Len(t, store.failed, 1)
}

func TestProcessCall_ChownDenied_Retries(t *testing.T) {
	spec := playbackSpec()
	spec.Owner = "asterisk"

	store := &fakeStore{call: pendingCall(t, spec, 1, 3)}
	w := testWorker(t, store, &fakeUsers{
		known:     map[string]*callfile.Account{"asterisk": {Name: "asterisk", UID: 101, GID: 101}},
		denyChown: true,
	})

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: store.call.CallID})
	require.Error(t, err)
	assert.True(t, shouldRequeue(err))
	assert.Len(t, store.released, 1)
	assert.Empty(t, store.failed)
}

func TestProcessCall_ChownDenied_AttemptsExhausted(t *testing.T) {
	spec := playbackSpec()
	spec.Owner = "asterisk"

	store := &fakeStore{call: pendingCall(t, spec, 3, 3)}
	w := testWorker(t, store, &fakeUsers{
		known:     map[string]*callfile.Account{"asterisk": {Name: "asterisk", UID: 101, GID: 101}},
		denyChown: true,
	})

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: store.call.CallID})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMaxAttemptsExceeded)
	assert.False(t, shouldRequeue(err))
	assert.Len(t, store.failed, 1)
	assert.Empty(t, store.released)
}

func TestProcessCall_ConfiguredAttemptCapBeatsRowBudget(t *testing.T) {
	spec := playbackSpec()
	spec.Owner = "asterisk"

	// Row grants 10 attempts but the worker is configured for 2.
	store := &fakeStore{call: pendingCall(t, spec, 2, 10)}
	w := testWorker(t, store, &fakeUsers{
		known:     map[string]*callfile.Account{"asterisk": {Name: "asterisk", UID: 101, GID: 101}},
		denyChown: true,
	})
	w.maxAttempts = 2

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: store.call.CallID})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMaxAttemptsExceeded)
	assert.False(t, shouldRequeue(err))
	assert.Len(t, store.failed, 1)
	assert.Empty(t, store.released)
}

func TestProcessCall_SpoolPermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory write permissions")
	}

	store := &fakeStore{call: pendingCall(t, playbackSpec(), 1, 3)}
	w := testWorker(t, store, nil)
	require.NoError(t, os.Chmod(w.spool.SpoolDir, 0o555))

	err := w.processCall(context.Background(), &domain.CallMessage{CallID: store.call.CallID})
	require.Error(t, err)
	assert.True(t, shouldRequeue(err))
	assert.Len(t, store.released, 1)
}

func TestBuildJobFile_Defaults(t *testing.T) {
	w := testWorker(t, &fakeStore{}, nil)
	w.spool.Owner = "asterisk"
	w.spool.Archive = true

	jf, err := w.buildJobFile("call-1", &callspec.Spec{
		Channel: "SIP/x",
		Action:  callspec.Action{Type: callspec.ActionApplication, Application: "Hangup"},
	})
	require.NoError(t, err)

	assert.Equal(t, "call-1.call", jf.Filename)
	assert.Equal(t, w.spool.SpoolDir, jf.SpoolDir)
	assert.Equal(t, w.spool.TempDir, jf.TempDir)
	assert.Equal(t, "asterisk", jf.User)
	assert.True(t, jf.Archive)
}

func TestBuildJobFile_SpecOverridesOwner(t *testing.T) {
	w := testWorker(t, &fakeStore{}, nil)
	w.spool.Owner = "asterisk"

	jf, err := w.buildJobFile("call-2", &callspec.Spec{
		Channel: "SIP/x",
		Owner:   "pbx",
		Action:  callspec.Action{Type: callspec.ActionApplication, Application: "Hangup"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pbx", jf.User)
}

func TestShouldRequeue(t *testing.T) {
	assert.True(t, shouldRequeue(domain.NewRetryableError(fmt.Errorf("boom"))))
	assert.False(t, shouldRequeue(fmt.Errorf("boom")))
	assert.False(t, shouldRequeue(callfile.ErrValidation))
}
