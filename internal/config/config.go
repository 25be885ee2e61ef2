// Package config loads and validates the server's JSON configuration
// file, grounded on the teacher's internal/config/config.go: package-
// level defaults overridden by an on-disk JSON document, schema-
// validated before decoding, with DisallowUnknownFields used the same
// way there.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/corekv/corekv/internal/corelog"
	"github.com/joho/godotenv"
)

// Config holds every key spec.md §6 recognizes, plus the EXPANSION
// keys §4.17/§2B/§4.12 add (http-addr, notify-nats-url,
// scripting-timeout-ms, gops).
type Config struct {
	Port        int    `json:"port"`
	Bind        string `json:"bind"`
	Databases   int    `json:"databases"`
	MaxClients  int    `json:"maxclients"`
	RequirePass string `json:"requirepass"`
	ACLFile     string `json:"aclfile"`

	AppendOnly     bool   `json:"appendonly"`
	AppendFilename string `json:"appendfilename"`
	AppendFsync    string `json:"appendfsync"`
	DBFilename     string `json:"dbfilename"`
	LogFile        string `json:"logfile"`

	MaxMemory        int64  `json:"maxmemory"`
	MaxMemoryPolicy  string `json:"maxmemory-policy"`
	MaxMemorySamples int    `json:"maxmemory-samples"`
	Save             string `json:"save"`

	RDBCompression           bool `json:"rdbcompression"`
	RDBChecksum              bool `json:"rdbchecksum"`
	StopWritesOnBgsaveError  bool `json:"stop-writes-on-bgsave-error"`

	SlowlogLogSlowerThan int64  `json:"slowlog-log-slower-than"`
	SlowlogMaxLen        int    `json:"slowlog-max-len"`
	NotifyKeyspaceEvents string `json:"notify-keyspace-events"`

	HTTPAddr           string `json:"http-addr"`
	NotifyNatsURL      string `json:"notify-nats-url"`
	ScriptingTimeoutMs int    `json:"scripting-timeout-ms"`
	Gops               bool   `json:"gops"`
}

// Defaults mirrors the conventional out-of-the-box values: RESP on
// 6379, every persistence feature off, noeviction, a conservative
// slowlog threshold.
func Defaults() Config {
	return Config{
		Port:                 6379,
		Bind:                 "0.0.0.0",
		Databases:            16,
		MaxClients:           10000,
		AppendOnly:           false,
		AppendFilename:       "corekv.aof",
		AppendFsync:          "everysec",
		DBFilename:           "dump.rdb",
		MaxMemoryPolicy:      "noeviction",
		MaxMemorySamples:     5,
		RDBCompression:       true,
		RDBChecksum:          true,
		SlowlogLogSlowerThan: 10000,
		SlowlogMaxLen:        128,
		HTTPAddr:             "",
		ScriptingTimeoutMs:   5000,
	}
}

// Load reads and validates the config file at path. A missing file is
// not an error: spec.md §6 says to start with defaults and log a
// warning. A present-but-invalid file (bad JSON, schema violation,
// unknown field) is returned as an error — the caller treats that as
// the fatal startup error spec.md also describes.
func Load(path string) (Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			corelog.Warnf("config file %q not found, using defaults", path)
			return cfg, nil
		}
		return cfg, err
	}

	if err := Validate(raw); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// LoadEnv overlays a .env file onto the process environment, ignoring
// a missing file, grounded on the teacher's cmd/cc-backend/main.go
// call to runtimeEnv.LoadEnv("./.env") at startup before config.Init.
func LoadEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// SaveRule is one "seconds changes" pair from the save directive.
type SaveRule struct {
	Seconds int
	Changes int
}

// ParseSaveRules parses spec.md §6's "list of seconds changes pairs"
// format, e.g. "900 1 300 10 60 10000".
func ParseSaveRules(raw string) ([]SaveRule, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil, nil
	}
	if len(fields)%2 != 0 {
		return nil, fmt.Errorf("save directive must be pairs of seconds/changes, got %q", raw)
	}
	rules := make([]SaveRule, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		seconds, err := strconv.Atoi(fields[i])
		if err != nil {
			return nil, fmt.Errorf("save directive: bad seconds %q", fields[i])
		}
		changes, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return nil, fmt.Errorf("save directive: bad changes %q", fields[i+1])
		}
		rules = append(rules, SaveRule{Seconds: seconds, Changes: changes})
	}
	return rules, nil
}
