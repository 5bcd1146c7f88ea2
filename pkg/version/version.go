// Package version holds build-time version info injected via ldflags and
// the client boundary API guard.
//
// Set at compile time:
//
//	go build -ldflags "-X github.com/NicolasHaas/netxchat/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/netxchat/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/netxchat/pkg/version.date=2026-01-01"
package version

import (
	"encoding/binary"
	"sync"

	"github.com/zeebo/blake3"
)

// Populated by -ldflags "-X ...". Defaults are used for local dev builds.
var (
	tag    = ""        // git tag (e.g. "v0.2.0"), empty if not on a tag
	commit = "unknown" // short git commit SHA
	date   = "unknown" // build date (ISO 8601)
)

// String returns a human-readable version string.
//
//	Tagged:   "v0.2.0"
//	Untagged: "abc1234"
//	Dev:      "dev"
func String() string {
	if tag != "" {
		return tag
	}
	if commit != "unknown" {
		return commit
	}
	return "dev"
}

// Full returns "tag (commit) built date" or a sensible fallback.
func Full() string {
	if tag != "" {
		return tag + " (" + commit + ") built " + date
	}
	if commit != "unknown" {
		return commit + " built " + date
	}
	return "dev"
}

// Tag returns the git tag, or empty string.
func Tag() string { return tag }

// Commit returns the short commit SHA.
func Commit() string { return commit }

// Date returns the build date.
func Date() string { return date }

// APIDescriptor is the canonical description of the client boundary. Any
// change to a boundary signature, callback shape or code value must change
// this text, which changes APIGuard.
const APIDescriptor = `netxchat.msgclient/1
codes ok=0 null_argument=1 internal_fault=2 protocol_or_transport_error=3 not_connected=4
new_by_config(out **client, config bytes) code
init(client) code
connect_test(client) code
login(client, nickname bytes, cb(outcome u8 0|1|2, message bytes)) bool
get_users(client, cb(users []{nickname bytes, session_id i64})) code
talk(client, msg bytes) code
to(client, target bytes, msg bytes) code
ping(client, target bytes, issue_time i64, cb(target bytes, elapsed_ms i64)) code
destroy(client **client) code
`

var apiGuard = sync.OnceValue(func() uint64 {
	sum := blake3.Sum256([]byte(APIDescriptor))
	return binary.BigEndian.Uint64(sum[:8])
})

// APIGuard returns a stable identifier for the boundary revision described
// by APIDescriptor. Callers compare it against the value they were built
// against before using any other entry point.
func APIGuard() uint64 { return apiGuard() }
