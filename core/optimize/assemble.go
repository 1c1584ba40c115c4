package optimize

import (
	"math"

	"github.com/kilianp07/bess-scheduler/core/model"
)

// noise below this magnitude is reported as zero.
const assembleEpsilon = 1e-7

// assemble maps an optimal assignment onto the window timestamps. soc[T] is
// reported as FinalSOC only.
func assemble(m *Model, x []float64) model.ScheduleResult {
	T := m.Len()
	v := m.vars
	res := model.ScheduleResult{
		Entries:  make([]model.ScheduleEntry, T),
		End:      m.window.End(),
		FinalSOC: clean(x[v.SOC[T]]),
	}
	for t := 0; t < T; t++ {
		imp := clean(x[v.GridImport[t]])
		var exp float64
		if v.GridExport != nil {
			exp = clean(x[v.GridExport[t]])
		}
		e := model.ScheduleEntry{
			Timestamp:  m.window.Timestep(t),
			Charge:     clean(x[v.Charge[t]]),
			Discharge:  clean(x[v.Discharge[t]]),
			SOC:        clean(x[v.SOC[t]]),
			Grid:       imp - exp,
			GridImport: imp,
			GridExport: exp,
			SolarUsed:  clean(x[v.SolarUsed[t]]),
			SolarGen:   m.window.Solar(t),
			Load:       m.window.Load(t),
			Price:      m.window.Price(t),
		}
		res.Entries[t] = e
		res.Cost += e.Price * e.Grid * m.window.StepHours(t)
	}
	return res
}

func clean(v float64) float64 {
	if math.Abs(v) < assembleEpsilon {
		return 0
	}
	return v
}
