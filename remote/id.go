package remote

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// instanceID produces a unique identifier for one connection instance.
// Crashed connections are never resurrected — a retry constructs a new
// instance — so the instance id is what tells two lives of the same server
// apart in logs. Format: conn_{YYYYMMDDTHHmmss}_{12 hex chars}.
func instanceID() string {
	ts := time.Now().UTC().Format("20060102T150405")
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return "conn_" + ts + "_" + hex.EncodeToString(b)
}
