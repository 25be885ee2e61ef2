package config

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaDoc type-checks every recognized key; it intentionally does
// not require any of them; Defaults() supplies values for whatever the
// file omits. Grounded on the teacher's internal/config/validate.go
// Validate(schema, instance) shape, using the same
// jsonschema.CompileString entrypoint.
const schemaDoc = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "port": {"type": "integer", "minimum": 1, "maximum": 65535},
    "bind": {"type": "string"},
    "databases": {"type": "integer", "minimum": 1},
    "maxclients": {"type": "integer", "minimum": 1},
    "requirepass": {"type": "string"},
    "aclfile": {"type": "string"},
    "appendonly": {"type": "boolean"},
    "appendfilename": {"type": "string"},
    "appendfsync": {"type": "string", "enum": ["always", "everysec", "no"]},
    "dbfilename": {"type": "string"},
    "logfile": {"type": "string"},
    "maxmemory": {"type": "integer", "minimum": 0},
    "maxmemory-policy": {
      "type": "string",
      "enum": ["noeviction", "allkeys-lru", "allkeys-lfu", "allkeys-random",
               "volatile-lru", "volatile-lfu", "volatile-random", "volatile-ttl"]
    },
    "maxmemory-samples": {"type": "integer", "minimum": 1},
    "save": {"type": "string"},
    "rdbcompression": {"type": "boolean"},
    "rdbchecksum": {"type": "boolean"},
    "stop-writes-on-bgsave-error": {"type": "boolean"},
    "slowlog-log-slower-than": {"type": "integer"},
    "slowlog-max-len": {"type": "integer", "minimum": 0},
    "notify-keyspace-events": {"type": "string"},
    "http-addr": {"type": "string"},
    "notify-nats-url": {"type": "string"},
    "scripting-timeout-ms": {"type": "integer", "minimum": 0},
    "gops": {"type": "boolean"}
  }
}`

// Validate checks instance (a raw config document) against schemaDoc.
func Validate(instance []byte) error {
	sch, err := jsonschema.CompileString("corekv-config.json", schemaDoc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		return err
	}
	return sch.Validate(v)
}
