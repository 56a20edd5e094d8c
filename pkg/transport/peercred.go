package transport

const opPeerCred = "transport.PeerCredentials"

// Credentials carries the effective user id and process id the
// transport attached to one received message (spec.md §4.5, §6).
type Credentials struct {
	UID uint32
	PID uint32
}
