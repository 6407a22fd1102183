package domain

import "time"

// ScalingEventKind distinguishes a scale-up from a scale-down entry in a
// pool's scaling history ring.
type ScalingEventKind string

const (
	ScaleUp   ScalingEventKind = "scale_up"
	ScaleDown ScalingEventKind = "scale_down"
)

// ScalingEvent records one auto-scaler decision for a pool's bounded
// history ring.
type ScalingEvent struct {
	Kind      ScalingEventKind `json:"kind"`
	Before    int              `json:"before"`
	After     int              `json:"after"`
	Reason    string           `json:"reason"`
	AvgLoad   float64          `json:"avg_load"`
	Timestamp time.Time        `json:"timestamp"`
}

// MaxScalingEvents bounds the in-memory scaling history ring per pool.
const MaxScalingEvents = 500
