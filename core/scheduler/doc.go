// Package scheduler runs the optimizer against live collaborators. A Runner
// pulls the forecast, resolves the starting state of charge, solves, and only
// then persists and announces the schedule. Successive runs can be chained so
// each starts from the state of charge the previous one ends with.
package scheduler
