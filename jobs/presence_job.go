package jobs

import (
	"log"

	"github.com/opsline/intranet_chat/websocket"
)

// SweepConnections pings every live gateway connection and prunes the
// ones whose transport is gone, so a crashed client does not linger in
// presence until its next write fails.
func SweepConnections(hub *websocket.Hub) func() {
	return func() {
		before := hub.ConnectionCount()
		hub.PingAll()
		after := hub.ConnectionCount()
		if after < before {
			log.Printf("Connection sweep pruned %d dead connection(s)", before-after)
		}
	}
}
