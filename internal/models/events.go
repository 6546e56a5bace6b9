package models

import (
	"time"
)

// ===========================================
// IMPRESSION EVENT
// ===========================================

// Impression is one ad exposure read from a `{client}_{tracker}` impression
// table. AttrA and AttrB hold the tracker-specific columns (campaign and
// creative identifiers) whose names come from the catalog.
type Impression struct {
	AdvertisingID string    `json:"advertising_id" yaml:"advertising_id"`
	Datetime      time.Time `json:"datetime" yaml:"datetime"`
	AttrA         string    `json:"attr_a" yaml:"attr_a"`
	AttrB         string    `json:"attr_b" yaml:"attr_b"`
}

// ===========================================
// CONVERSION EVENT
// ===========================================

// Conversion is one tracked outcome read from a conversion table.
type Conversion struct {
	AdvertisingID string    `json:"advertising_id" yaml:"advertising_id"`
	EventTime     time.Time `json:"event_time" yaml:"event_time"`
	EventName     string    `json:"event_name" yaml:"event_name"`
	EventValue    string    `json:"event_value" yaml:"event_value"`
}
