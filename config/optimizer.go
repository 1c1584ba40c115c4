package config

import "github.com/kilianp07/bess-scheduler/core/optimize"

// OptimizerConfig mirrors optimize.Options. AllowExport is a pointer so that
// an absent key keeps exports enabled.
type OptimizerConfig struct {
	AllowExport   *bool              `json:"allow_export"`
	ExportLimitKW float64            `json:"export_limit_kw"`
	GridCharging  bool               `json:"grid_charging"`
	CostBasis     optimize.CostBasis `json:"cost_basis"`
	MaxNodes      int                `json:"max_nodes"`
}

// Options converts the section to optimizer options.
func (c OptimizerConfig) Options() optimize.Options {
	o := optimize.DefaultOptions()
	if c.AllowExport != nil {
		o.AllowExport = *c.AllowExport
	}
	o.ExportLimitKW = c.ExportLimitKW
	o.GridCharging = c.GridCharging
	if c.CostBasis != "" {
		o.CostBasis = c.CostBasis
	}
	return o
}

// Solver returns the branch and bound solver with the configured node limit.
func (c OptimizerConfig) Solver() optimize.BranchAndBound {
	s := optimize.NewBranchAndBound()
	if c.MaxNodes > 0 {
		s.MaxNodes = c.MaxNodes
	}
	return s
}
