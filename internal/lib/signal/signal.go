// Package signal derives the single-lane traffic-signal state from per-lane
// vehicle totals.
package signal

// LaneCount is the fixed number of lanes the intersection model covers.
const LaneCount = 3

// State is the color assigned to a lane.
type State string

const (
	Green State = "green"
	Red   State = "red"
)

// LaneSignal is the derived signal for one lane.
type LaneSignal struct {
	Lane            int   `json:"lane"`
	Status          State `json:"status"`
	DurationSeconds int   `json:"duration_seconds"`
	VehicleCount    int   `json:"vehicle_count"`
}

// Arbitrate assigns green to the lane with the strictly smallest vehicle
// total and red to the other two. Lanes are compared in order with strict
// less-than against the running minimum, so on a tie the earliest lane keeps
// the assignment. This tie-break is observable behavior and must not change.
func Arbitrate(laneTotals [LaneCount]int) [LaneCount]LaneSignal {
	greenLane := 0
	minCount := laneTotals[0]
	for i := 1; i < LaneCount; i++ {
		if laneTotals[i] < minCount {
			minCount = laneTotals[i]
			greenLane = i
		}
	}

	var signals [LaneCount]LaneSignal
	for i := 0; i < LaneCount; i++ {
		status := Red
		if i == greenLane {
			status = Green
		}
		signals[i] = LaneSignal{
			Lane:            i + 1,
			Status:          status,
			DurationSeconds: greenDuration(laneTotals[i], total(laneTotals)),
			VehicleCount:    laneTotals[i],
		}
	}
	return signals
}

// greenDuration scales a 30 second base phase by the lane's share of total
// traffic, clamped to [10, 60]. With no traffic anywhere every lane gets the
// default phase.
func greenDuration(laneTotal, allLanes int) int {
	const base = 30
	if allLanes == 0 {
		return base
	}

	duration := int(float64(base) * (float64(laneTotal) / float64(allLanes)) * 3)
	if duration < 10 {
		return 10
	}
	if duration > 60 {
		return 60
	}
	return duration
}

func total(laneTotals [LaneCount]int) int {
	sum := 0
	for _, n := range laneTotals {
		sum += n
	}
	return sum
}
