package model

import "time"

// Mode identifies how a schedule was produced.
type Mode string

const (
	ModeCostOnly Mode = "cost_only"
	ModeDispatch Mode = "dispatch"
)

// Stage names one solver call of a run.
type Stage string

const (
	StageDispatch Stage = "dispatch"
	StageCost     Stage = "cost"
)

// ScheduleEntry is one row of a schedule, aligned with a forecast timestep.
// Power values are in kW and SOC is the stored energy at the start of the
// step in kWh. Grid is signed, positive when importing. SolarGen is the
// forecast generation and SolarUsed the part consumed directly by the load.
type ScheduleEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Charge     float64   `json:"charge"`
	Discharge  float64   `json:"discharge"`
	SOC        float64   `json:"soc"`
	Grid       float64   `json:"grid"`
	GridImport float64   `json:"grid_import"`
	GridExport float64   `json:"grid_export"`
	SolarUsed  float64   `json:"solar_used"`
	SolarGen   float64   `json:"solar_gen"`
	Load       float64   `json:"load"`
	Price      float64   `json:"price"`
}

// StageReport summarises one solver call.
type StageReport struct {
	Stage     Stage         `json:"stage"`
	Objective float64       `json:"objective"`
	Nodes     int           `json:"nodes"`
	Duration  time.Duration `json:"duration"`
	// Fixed holds the grid values pinned after the dispatch stage, keyed by
	// timestep index.
	Fixed map[int]float64 `json:"fixed,omitempty"`
}

// ScheduleResult is the schedule produced by one run. It is the only value
// that leaves the optimizer.
type ScheduleResult struct {
	RunID     string          `json:"run_id"`
	Mode      Mode            `json:"mode"`
	Entries   []ScheduleEntry `json:"entries"`
	End       time.Time       `json:"end"`
	FinalSOC  float64         `json:"final_soc"`
	Cost      float64         `json:"cost"`
	Stages    []StageReport   `json:"stages"`
	CreatedAt time.Time       `json:"created_at"`
}

// Start returns the first timestamp of the schedule.
func (r ScheduleResult) Start() time.Time {
	if len(r.Entries) == 0 {
		return time.Time{}
	}
	return r.Entries[0].Timestamp
}

// Stage returns the report for s, if any.
func (r ScheduleResult) Stage(s Stage) (StageReport, bool) {
	for _, st := range r.Stages {
		if st.Stage == s {
			return st, true
		}
	}
	return StageReport{}, false
}
