package models

import (
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
)

// DisasterEvent is the canonical shape every upstream feed record is normalized into.
type DisasterEvent struct {
	ID         string // stable id, e.g. "eonet_EONET_6543" or a v5 uuid for id-less records
	Source     string // "eonet", "usgs", "gdacs", "apex"
	Name       string
	Type       string // free text, e.g. "Wildfires" or "Severe Storms, Floods"
	Coordinate geo.Coordinate
	OccurredAt time.Time // always set; records without a parseable time are rejected
	County     string
	State      string
	Country    string
	Raw        []byte    // original payload for debugging
	CreatedAt  time.Time // when we committed it
}

func (d *DisasterEvent) Coordinates() geo.Coordinate {
	return d.Coordinate
}

// NewerThan reports whether d occurred strictly after t.
func (d *DisasterEvent) NewerThan(t time.Time) bool {
	return d.OccurredAt.After(t)
}
