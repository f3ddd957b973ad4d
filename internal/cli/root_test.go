package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ariefcatur/go-digital-library/internal/library"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLibrary struct {
	result  library.Result
	err     error
	granted map[string]int
	syncErr map[string]error
	closed  bool
}

func (f *fakeLibrary) TriggerFulfillment(_ context.Context, orderID string) (library.Result, error) {
	r := f.result
	r.OrderID = orderID
	return r, f.err
}

func (f *fakeLibrary) SyncEntitlements(_ context.Context, userID string) (int, error) {
	if err := f.syncErr[userID]; err != nil {
		return 0, err
	}
	return f.granted[userID], nil
}

func (f *fakeLibrary) open(context.Context) (Library, func(), error) {
	return f, func() { f.closed = true }, nil
}

func run(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand(nil)
	assert.Equal(t, "libraryctl", cmd.Use)

	for _, name := range []string{"fulfill", "sync"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}

	f := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, f)
	assert.Equal(t, "text", f.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	lib := &fakeLibrary{}
	_, err := run(t, lib.open, "--format", "yaml", "sync", "u-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestFulfill_Text(t *testing.T) {
	lib := &fakeLibrary{result: library.Result{UserID: "u-1", Granted: []string{"7", "9"}}}
	out, err := run(t, lib.open, "fulfill", "o-1")
	require.NoError(t, err)
	assert.Equal(t, "order o-1: granted 7, 9 to u-1\n", out)
	assert.True(t, lib.closed)
}

func TestFulfill_JSONFailure(t *testing.T) {
	lib := &fakeLibrary{err: library.ErrWrite, result: library.Result{UserID: "u-1"}}
	out, err := run(t, lib.open, "--format", "json", "fulfill", "o-1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "entitlement write failed")
}

func TestFulfill_Skipped(t *testing.T) {
	lib := &fakeLibrary{result: library.Result{Skipped: true, Reason: "status pending"}}
	out, err := run(t, lib.open, "fulfill", "o-1")
	require.NoError(t, err)
	assert.Contains(t, out, "skipped: status pending")
}

func TestSync_Multiple(t *testing.T) {
	lib := &fakeLibrary{granted: map[string]int{"u-1": 2, "u-2": 0}}
	out, err := run(t, lib.open, "--format", "json", "sync", "u-1", "u-2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":[{"user_id":"u-1","granted":2},{"user_id":"u-2","granted":0}]}`, out)
}

func TestSync_PartialFailure(t *testing.T) {
	lib := &fakeLibrary{
		granted: map[string]int{"u-1": 1},
		syncErr: map[string]error{"u-2": library.ErrRead},
	}
	out, err := run(t, lib.open, "sync", "u-1", "u-2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "u-2")
}

func TestOpenFailure(t *testing.T) {
	open := func(context.Context) (Library, func(), error) { return nil, nil, errors.New("dial tcp: refused") }
	_, err := run(t, open, "sync", "u-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
