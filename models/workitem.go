package models

import "time"

// WorkItem is one unit of checkout work: a descriptor naming the event page
// plus the criteria to buy against. Items are never deleted; Processed flips
// to true exactly once, when a worker claims the item.
type WorkItem struct {
	ID         int64     `json:"id"`
	Descriptor string    `json:"descriptor"`
	Processed  bool      `json:"processed"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}
