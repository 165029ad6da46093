package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	samp "github.com/NotrixInc/nx-samp"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sampc dev")
}

func TestParseRows(t *testing.T) {
	cases := []struct {
		args    []string
		want    []int
		wantErr bool
	}{
		{[]string{"3"}, []int{3}, false},
		{[]string{"3", "6,15", "16"}, []int{3, 6, 15, 16}, false},
		{[]string{"x"}, nil, true},
		{[]string{"-1"}, nil, true},
		{[]string{","}, nil, true},
	}
	for _, tc := range cases {
		got, err := parseRows(tc.args)
		if tc.wantErr {
			assert.Error(t, err, "%v", tc.args)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "stars.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("ra,dec\n1.5,2\n3,4\n"), 0o644))

	tbl, err := loadTable(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, "stars", tableNameFor(csvPath))

	_, err = loadTable(filepath.Join(dir, "stars.txt"))
	assert.Error(t, err)
}

func TestSendAndRowsAgainstHub(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "hub.lock")

	h := samp.NewHub(samp.HubConfig{LockfilePath: lockPath})
	require.NoError(t, h.Start(ctx))
	defer h.Stop(ctx)
	t.Setenv("SAMP_HUB", "std-lockurl:"+samp.FileURL(lockPath))

	got := make(chan samp.Message, 4)
	lock := h.LockInfo()
	listener := samp.NewHubConnection(samp.ConnectionConfig{Metadata: samp.NewMetadata("TOPCAT"), Lock: &lock})
	record := samp.NotificationHandlerFunc(func(_ context.Context, _ string, msg samp.Message) error {
		got <- msg
		return nil
	})
	listener.BindReceiveNotification("table.*", record)
	require.NoError(t, listener.Connect(ctx))
	defer listener.Disconnect(ctx)

	csvPath := filepath.Join(dir, "stars.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("ra,dec\n1.5,2\n3,4\n5,6\n"), 0o644))
	scratch := filepath.Join(dir, "scratch")

	out, err := run(t, "--scratch", scratch, "send", csvPath, "--to", "TOPCAT")
	require.NoError(t, err)
	assert.Contains(t, out, "sent "+csvPath)
	assert.FileExists(t, filepath.Join(scratch, "stars.fits"))

	msg := next(t, got)
	assert.Equal(t, samp.MTypeTableLoadFITS, msg.MType)
	assert.Equal(t, "stars.fits", msg.Params["name"])

	_, err = run(t, "--scratch", scratch, "rows", "stars", "0", "2")
	require.NoError(t, err)
	msg = next(t, got)
	assert.Equal(t, samp.MTypeTableSelectRows, msg.MType)
	assert.Equal(t, []any{"0", "2"}, msg.Params["row-list"])

	out, err = run(t, "--scratch", scratch, "rows", "stars", "1", "--highlight")
	require.NoError(t, err)
	assert.Contains(t, out, "highlighted row 1 of stars")
	msg = next(t, got)
	assert.Equal(t, samp.MTypeTableHighlightRow, msg.MType)

	_, err = run(t, "--scratch", scratch, "rows", "stars", "1", "2", "--highlight")
	assert.Error(t, err)

	_, err = run(t, "--scratch", scratch, "rows", "unknown", "1")
	assert.ErrorIs(t, err, samp.ErrTableNotFound)

	out, err = run(t, "--scratch", scratch, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "TOPCAT")
}

func next(t *testing.T, ch <-chan samp.Message) samp.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
	return samp.Message{}
}
