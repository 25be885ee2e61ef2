package observability

import (
	"fmt"
	"os"
	"strings"
	"time"
)

func processID() int { return os.Getpid() }

// DBStat is one Keyspace section line's worth of data (spec.md §4.16:
// "dbN:keys=…,expires=…,avg_ttl=…").
type DBStat struct {
	Index   int
	Keys    int
	Expires int
}

// InfoInput gathers every figure the INFO blob renders. It is a plain
// struct rather than a live handle into other packages' types so that
// observability stays free of import cycles with server/maintenance/
// dispatch; cmd/corekv-server's buildInfoInput assembles one from live
// state for each /debug/info request.
type InfoInput struct {
	Version   string
	RunID     string
	StartedAt time.Time
	Port      int

	ConnectedClients int
	BlockedClients   int
	MaxClients       int

	UsedMemoryBytes int64
	PeakMemoryBytes int64
	MaxMemoryBytes  int64

	Dirty        int64
	LastSaveUnix int64
	LastSaveOK   bool

	Databases []DBStat
}

// RenderInfo produces the sectioned text blob spec.md §4.16 describes.
// section selects one of "server"/"clients"/"memory"/"persistence"/
// "keyspace" (case-insensitive); "all" or an empty value renders every
// section, and an unrecognized value renders nothing.
func RenderInfo(section string, in InfoInput) string {
	section = strings.ToLower(section)
	all := section == "" || section == "all"

	var b strings.Builder
	if all || section == "server" {
		fmt.Fprintf(&b, "# Server\r\n")
		fmt.Fprintf(&b, "corekv_version:%s\r\n", in.Version)
		fmt.Fprintf(&b, "os:%s\r\n", "linux")
		fmt.Fprintf(&b, "run_id:%s\r\n", in.RunID)
		fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(in.StartedAt).Seconds()))
		fmt.Fprintf(&b, "process_id:%d\r\n", processID())
		fmt.Fprintf(&b, "tcp_port:%d\r\n", in.Port)
		b.WriteString("\r\n")
	}
	if all || section == "clients" {
		fmt.Fprintf(&b, "# Clients\r\n")
		fmt.Fprintf(&b, "connected_clients:%d\r\n", in.ConnectedClients)
		fmt.Fprintf(&b, "blocked_clients:%d\r\n", in.BlockedClients)
		fmt.Fprintf(&b, "maxclients:%d\r\n", in.MaxClients)
		b.WriteString("\r\n")
	}
	if all || section == "memory" {
		fmt.Fprintf(&b, "# Memory\r\n")
		fmt.Fprintf(&b, "used_memory:%d\r\n", in.UsedMemoryBytes)
		fmt.Fprintf(&b, "used_memory_peak:%d\r\n", in.PeakMemoryBytes)
		fmt.Fprintf(&b, "maxmemory:%d\r\n", in.MaxMemoryBytes)
		b.WriteString("\r\n")
	}
	if all || section == "persistence" {
		fmt.Fprintf(&b, "# Persistence\r\n")
		fmt.Fprintf(&b, "rdb_changes_since_last_save:%d\r\n", in.Dirty)
		fmt.Fprintf(&b, "rdb_last_save_time:%d\r\n", in.LastSaveUnix)
		fmt.Fprintf(&b, "rdb_last_bgsave_status:%s\r\n", okOrErr(in.LastSaveOK))
		b.WriteString("\r\n")
	}
	if all || section == "keyspace" {
		fmt.Fprintf(&b, "# Keyspace\r\n")
		for _, d := range in.Databases {
			if d.Keys == 0 {
				continue
			}
			avgTTL := 0
			fmt.Fprintf(&b, "db%d:keys=%d,expires=%d,avg_ttl=%d\r\n", d.Index, d.Keys, d.Expires, avgTTL)
		}
		b.WriteString("\r\n")
	}
	return b.String()
}

func okOrErr(ok bool) string {
	if ok {
		return "ok"
	}
	return "err"
}
