package snapshot

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/corekv/corekv/internal/store"
	"github.com/corekv/corekv/internal/stream"
)

func TestEncodeDecodeRoundTripScalarKinds(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 1700000000)
	require.NoError(t, enc.WriteHeader("test-1"))

	list := store.NewList()
	list.List.PushBack([]byte("a"))
	list.List.PushBack([]byte("b"))

	set := store.NewSet()
	set.Set["x"] = struct{}{}
	set.Set["y"] = struct{}{}

	hash := store.NewHash()
	hash.Hash["f1"] = []byte("v1")

	zset := store.NewZSet()
	zset.ZSet.Add("m1", 1.5)
	zset.ZSet.Add("m2", 2.5)

	records := map[string]store.Value{
		"str":  store.NewString([]byte("hello world, this string is long enough to maybe compress well with snappy if repeated repeated repeated")),
		"lst":  list,
		"set":  set,
		"hash": hash,
		"zset": zset,
	}

	require.NoError(t, enc.WriteDatabase(0, len(records), 0, func(record func(string, store.Value, int64) error) error {
		for k, v := range records {
			if err := record(k, v, 0); err != nil {
				return err
			}
		}
		return nil
	}))
	require.NoError(t, enc.Finish())

	dec := NewDecoder(&buf)
	aux, err := dec.VerifyHeader()
	require.NoError(t, err)
	require.Equal(t, "test-1", aux[formatAux1])

	got := map[string]store.Value{}
	err = dec.Load(func(rec KeyRecord) error {
		got[rec.Key] = rec.Value
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 5)
	require.Equal(t, records["str"].Str, got["str"].Str)
	require.Equal(t, 2, got["lst"].List.Len())
	require.Len(t, got["set"].Set, 2)
	require.Equal(t, []byte("v1"), got["hash"].Hash["f1"])
	require.Equal(t, 2, got["zset"].ZSet.Len())
}

func TestEncodeDecodeExpiryPreserved(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 1700000000)
	require.NoError(t, enc.WriteHeader("test-1"))
	require.NoError(t, enc.WriteDatabase(0, 1, 1, func(record func(string, store.Value, int64) error) error {
		return record("k", store.NewString([]byte("v")), 1234567890123)
	}))
	require.NoError(t, enc.Finish())

	dec := NewDecoder(&buf)
	_, err := dec.VerifyHeader()
	require.NoError(t, err)

	var gotExpire int64
	require.NoError(t, dec.Load(func(rec KeyRecord) error {
		gotExpire = rec.ExpiresAt
		return nil
	}))
	require.EqualValues(t, 1234567890123, gotExpire)
}

func TestEncodeDecodeStreamWithGroup(t *testing.T) {
	s := stream.New()
	_, err := s.Append(100, nil, []stream.Field{{Name: []byte("f"), Value: []byte("v")}})
	require.NoError(t, err)
	_, err = s.Append(101, nil, []stream.Field{{Name: []byte("f"), Value: []byte("v2")}})
	require.NoError(t, err)

	g, err := s.CreateGroup("grp", stream.MinID)
	require.NoError(t, err)
	s.ReadGroupNew(g, "c1", 10, 1000)

	var buf bytes.Buffer
	enc := NewEncoder(&buf, 1700000000)
	require.NoError(t, enc.WriteHeader("test-1"))
	require.NoError(t, enc.WriteDatabase(0, 1, 0, func(record func(string, store.Value, int64) error) error {
		return record("stream-key", store.NewStream(s), 0)
	}))
	require.NoError(t, enc.Finish())

	dec := NewDecoder(&buf)
	_, err = dec.VerifyHeader()
	require.NoError(t, err)

	var restored *stream.Stream
	require.NoError(t, dec.Load(func(rec KeyRecord) error {
		restored = rec.Value.Stream.(*stream.Stream)
		return nil
	}))
	require.Equal(t, 2, restored.Len())
	rg, ok := restored.Group("grp")
	require.True(t, ok)
	require.Equal(t, 2, rg.Summary().Count)
}

func TestChecksumMismatchDetected(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, 1700000000)
	require.NoError(t, enc.WriteHeader("test-1"))
	require.NoError(t, enc.WriteDatabase(0, 1, 0, func(record func(string, store.Value, int64) error) error {
		return record("k", store.NewString([]byte("v")), 0)
	}))
	require.NoError(t, enc.Finish())

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	dec := NewDecoder(bytes.NewReader(corrupted))
	_, err := dec.VerifyHeader()
	require.NoError(t, err)
	err = dec.Load(func(KeyRecord) error { return nil })
	require.ErrorIs(t, err, ErrChecksum)
}

func TestBadMagicRejected(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte("NOTASNAP")))
	_, err := dec.VerifyHeader()
	require.ErrorIs(t, err, ErrBadMagic)
}
