package worker

// Notice is published once per replay that reached disk.
type Notice struct {
	EventID   string `json:"event_id"`
	DemoID    string `json:"demo_id"`
	MatchURL  string `json:"match_url"`
	DemoURL   string `json:"demo_url"`
	Path      string `json:"path"`
	MirrorURI string `json:"mirror_uri,omitempty"`
	SHA256    string `json:"sha256"`
	Bytes     int64  `json:"bytes"`
	Timestamp string `json:"timestamp"`
}

// Attributes exposes routing keys as Pub/Sub message attributes.
func (n Notice) Attributes() map[string]string {
	return map[string]string{
		"event_id": n.EventID,
		"demo_id":  n.DemoID,
	}
}
