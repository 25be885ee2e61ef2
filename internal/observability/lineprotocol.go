package observability

import (
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
)

// EncodeLineProtocol renders s as a single InfluxDB line-protocol line
// under measurement, timestamped t. Grounded on the decode side the
// teacher's internal/memorystore/lineprotocol.go drives
// (lineprotocol.Decoder reading Float/Int/Uint-kinded fields and a
// Second/Millisecond/Microsecond/Nanosecond-precision timestamp); this
// is the same wire shape produced with lineprotocol.Encoder instead.
func EncodeLineProtocol(measurement string, s Snapshot, t time.Time) ([]byte, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Second)
	enc.StartLine(measurement)
	enc.AddField("commands_total", lineprotocol.IntValue(s.CommandsTotal))
	enc.AddField("connected_clients", lineprotocol.IntValue(s.ConnectedClients))
	enc.AddField("expired_keys_total", lineprotocol.IntValue(s.ExpiredKeysTotal))
	enc.AddField("evicted_keys_total", lineprotocol.IntValue(s.EvictedKeysTotal))
	enc.AddField("keyspace_hits_total", lineprotocol.IntValue(s.KeyspaceHits))
	enc.AddField("keyspace_misses_total", lineprotocol.IntValue(s.KeyspaceMisses))
	enc.EndLine(t)
	if err := enc.Err(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}
