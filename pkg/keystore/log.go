package keystore

import (
	"github.com/keybase/saltpack/encoding/basex"
	"github.com/op/go-logging"
	uuid "github.com/satori/go.uuid"
)

var log = logging.MustGetLogger("keystore")

// shortID renders a UUID as a compact base62 string for log lines,
// grounded on the teacher's basex-encoded session/random-id prefixes
// in ssh_agent.go and util.go.
func shortID(id uuid.UUID) string {
	b := id
	return basex.Base62StdEncoding.EncodeToString(b[:])
}
