package aof

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.aof")

	l, err := Open(path, FsyncAlways)
	require.NoError(t, err)

	require.NoError(t, l.Append([][]byte{[]byte("SET"), []byte("key1"), []byte("value1")}))
	require.NoError(t, l.Append([][]byte{[]byte("RPUSH"), []byte("list1"), []byte("item1")}))
	require.NoError(t, l.Close())

	var replayed [][][]byte
	require.NoError(t, Replay(path, func(argv [][]byte) error {
		replayed = append(replayed, argv)
		return nil
	}))

	require.Len(t, replayed, 2)
	require.Equal(t, "SET", string(replayed[0][0]))
	require.Equal(t, "key1", string(replayed[0][1]))
	require.Equal(t, "value1", string(replayed[0][2]))
	require.Equal(t, "RPUSH", string(replayed[1][0]))
}

func TestReplayMissingFileIsNoop(t *testing.T) {
	err := Replay(filepath.Join(t.TempDir(), "missing.aof"), func([][]byte) error {
		t.Fatal("should not be called")
		return nil
	})
	require.NoError(t, err)
}

func TestReplaySkipsCommentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.aof")
	l, err := Open(path, FsyncNo)
	require.NoError(t, err)
	require.NoError(t, l.Append([][]byte{[]byte("PING")}))
	require.NoError(t, l.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	withComment := append([]byte("# corekv command log\n"), raw...)
	require.NoError(t, os.WriteFile(path, withComment, 0o644))

	var got [][]byte
	require.NoError(t, Replay(path, func(argv [][]byte) error {
		got = argv
		return nil
	}))
	require.Equal(t, "PING", string(got[0]))
}

func TestRewriteSwapsFileAndKeepsBufferedAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.aof")
	l, err := Open(path, FsyncNo)
	require.NoError(t, err)
	require.NoError(t, l.Append([][]byte{[]byte("SET"), []byte("a"), []byte("1")}))

	l.BeginRewrite()
	require.NoError(t, l.Append([][]byte{[]byte("SET"), []byte("b"), []byte("2")}))

	tmpPath := path + ".tmp"
	rw, err := NewRewriteWriter(tmpPath)
	require.NoError(t, err)
	require.NoError(t, rw.WriteCommand([][]byte{[]byte("SET"), []byte("a"), []byte("1")}))
	require.NoError(t, rw.Close())

	require.NoError(t, l.FinishRewrite(tmpPath))
	require.NoError(t, l.Close())

	var replayed [][][]byte
	require.NoError(t, Replay(path, func(argv [][]byte) error {
		replayed = append(replayed, argv)
		return nil
	}))
	require.Len(t, replayed, 2)
	require.Equal(t, "a", string(replayed[0][1]))
	require.Equal(t, "b", string(replayed[1][1]))
}
