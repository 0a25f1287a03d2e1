package services

import (
	"github.com/Fingerliing/payquick-sub001/realtime"
)

// publish -> fan-out best-effort; nil publisher berarti tidak ada realtime layer
// (mis. di test) dan mutasi state tetap jalan
func publish(pub realtime.Publisher, key string, event realtime.Event) {
	if pub == nil {
		return
	}
	pub.Publish(key, event)
}
