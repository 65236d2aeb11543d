package models

// StoreCounts holds per-variant entity counts as reported by the store.
type StoreCounts struct {
	Nodes    map[string]int64 `json:"nodes"`
	Edges    map[string]int64 `json:"edges"`
	Episodes map[string]int64 `json:"episodes"`
}

// MemoryStats is the health/stats payload exposed to the surrounding
// application layer.
type MemoryStats struct {
	Nodes          map[string]int64 `json:"nodes"`
	Edges          map[string]int64 `json:"edges"`
	Episodes       map[string]int64 `json:"episodes"`
	StoreConnected bool             `json:"store_connected"`
}
