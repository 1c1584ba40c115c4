package schedule

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kilianp07/bess-scheduler/core/model"
	"github.com/kilianp07/bess-scheduler/core/optimize"
	"github.com/kilianp07/bess-scheduler/core/scheduler"
	"github.com/kilianp07/bess-scheduler/infra/store"
	"github.com/kilianp07/bess-scheduler/pkg/scenario"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunRequest starts one or more chained runs.
type RunRequest struct {
	Start   time.Time              `json:"start" binding:"required"`
	Runs    int                    `json:"runs"`
	Windows []model.DispatchWindow `json:"windows"`
}

// RunResponse lists the computed schedules.
type RunResponse struct {
	Results []model.ScheduleResult `json:"results"`
}

// SchedulesResponse lists stored steps.
type SchedulesResponse struct {
	Rows []store.Row `json:"rows"`
}

func abort(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Code: code, Message: msg}})
}

// statusFor maps run failures onto HTTP statuses.
func statusFor(err error) int {
	var (
		ce *model.ConfigurationError
		de *model.DataError
		ie *optimize.InfeasibleError
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.As(err, &ce), errors.As(err, &de):
		return http.StatusBadRequest
	case errors.As(err, &ie):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	abort(c, status, strings.ToUpper(scheduler.FailureReason(err)), err.Error())
}

// optimize solves an inline scenario without persisting anything.
func (s *Server) optimize(c *gin.Context) {
	sc, err := scenario.Decode(c.Request.Body, "json")
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	req, err := sc.Request(c.GetHeader("X-Request-Id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if req.RunID == "" {
		req.RunID = "adhoc"
	}
	opt := optimize.New(s.deps.Solver, sc.OptionsOr(s.deps.Options), s.log, nil)
	res, err := opt.Optimize(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) runs(c *gin.Context) {
	if s.deps.Runner == nil {
		abort(c, http.StatusServiceUnavailable, "UNAVAILABLE", "runner not configured")
		return
	}
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	n := req.Runs
	if n <= 0 {
		n = 1
	}
	results, err := s.deps.Runner.RunSequence(c.Request.Context(), req.Start, n, req.Windows)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RunResponse{Results: results})
}

func (s *Server) compare(c *gin.Context) {
	if s.deps.Runner == nil {
		abort(c, http.StatusServiceUnavailable, "UNAVAILABLE", "runner not configured")
		return
	}
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	cmp, err := s.deps.Runner.Compare(c.Request.Context(), req.Start, req.Windows)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (s *Server) schedules(c *gin.Context) {
	if s.deps.Schedules == nil {
		abort(c, http.StatusServiceUnavailable, "UNAVAILABLE", "store not configured")
		return
	}
	start, err := parseTime(c.Query("start"))
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", "start: "+err.Error())
		return
	}
	end, err := parseTime(c.Query("end"))
	if err != nil {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", "end: "+err.Error())
		return
	}
	if !end.IsZero() && !end.After(start) {
		abort(c, http.StatusBadRequest, "INVALID_REQUEST", "end must follow start")
		return
	}
	rows, err := s.deps.Schedules.Query(c.Request.Context(), start, end)
	if err != nil {
		s.fail(c, err)
		return
	}
	if rows == nil {
		rows = []store.Row{}
	}
	c.JSON(http.StatusOK, SchedulesResponse{Rows: rows})
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
