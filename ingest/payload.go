package ingest

import (
	"encoding/json"
	"strings"
)

// Payload is the message published on the ingestion channel.
type Payload struct {
	PurchaseURLs []string `json:"purchaseURLs"`
	Instances    int      `json:"instances,omitempty"`
}

// Descriptors returns the non-empty purchase URLs carried by payload. The
// payload is either a decoded JSON object or a string holding one.
func Descriptors(payload any) []string {
	switch p := payload.(type) {
	case map[string]any:
		return fromList(p["purchaseURLs"])
	case string:
		return fromJSON([]byte(p))
	case []byte:
		return fromJSON(p)
	case json.RawMessage:
		return fromJSON(p)
	case Payload:
		return clean(p.PurchaseURLs)
	case *Payload:
		if p == nil {
			return nil
		}
		return clean(p.PurchaseURLs)
	}
	return nil
}

func fromJSON(raw []byte) []string {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	return clean(p.PurchaseURLs)
}

func fromList(v any) []string {
	switch list := v.(type) {
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return clean(out)
	case []string:
		return clean(list)
	case string:
		return clean([]string{list})
	}
	return nil
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
