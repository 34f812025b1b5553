package models

import (
	"time"
)

const (
	EventStatusPublish   = "publish"
	EventStatusUnpublish = "unpublish"
)

type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	StartTime time.Time `json:"start_time"`
	Status    string    `json:"status"` // publish, unpublish
}

func (e Event) IsPublished() bool {
	return e.Status == EventStatusPublish
}
