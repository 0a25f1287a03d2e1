package realtime

import (
	"encoding/json"
	"sync"

	"github.com/Fingerliing/payquick-sub001/utils"
)

// Hub menampung semua client realtime per group key (session_<id>, order_<id>).
// Hub hanya menyimpan membership sementara; session store tetap source of truth.
type Hub struct {
	mu     sync.Mutex
	groups map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		groups: make(map[string]map[*Client]bool),
	}
}

// Subscribe -> menambahkan client ke satu group
func (h *Hub) Subscribe(key string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[key] == nil {
		h.groups[key] = make(map[*Client]bool)
	}
	h.groups[key][c] = true
	c.keys[key] = true
}

// Unsubscribe -> melepaskan client dari semua group miliknya
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key := range c.keys {
		if members, ok := h.groups[key]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.groups, key)
			}
		}
	}
	c.keys = make(map[string]bool)
	c.closeSend()
}

// Publish -> kirim event ke semua member group. Best-effort: client yang
// buffernya penuh di-drop, tidak pernah memblokir publisher.
func (h *Hub) Publish(key string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		if utils.ErrorLogger != nil {
			utils.ErrorLogger.Printf("realtime: error marshaling event %s: %v", event.Type, err)
		}
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for c := range h.groups[key] {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}

	for _, c := range slow {
		if utils.InfoLogger != nil {
			utils.InfoLogger.Printf("realtime: dropping slow client from %s", key)
		}
		h.dropLocked(c)
	}
}

// GroupSize -> jumlah client di satu group
func (h *Hub) GroupSize(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[key])
}

// dropLocked melepaskan client; caller memegang h.mu
func (h *Hub) dropLocked(c *Client) {
	for key := range c.keys {
		if members, ok := h.groups[key]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.groups, key)
			}
		}
	}
	c.keys = make(map[string]bool)
	c.closeSend()
}
