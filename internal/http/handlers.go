package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/duebot/internal/model"
	"github.com/jmehdipour/duebot/internal/repository"
	"github.com/jmehdipour/duebot/internal/scheduler"
)

func healthHandler(s Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":            "ok",
			"scheduler_running": s.IsRunning(),
			"timestamp":         time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type scheduleRequest struct {
	CheckTime string `json:"check_time"`
	SendTime  string `json:"send_time"`
}

func rescheduleHandler(s Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := tenantParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		}
		var req scheduleRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
		}

		err := s.Reschedule(c.Request().Context(), tenantID, req.CheckTime, req.SendTime)
		switch {
		case errors.Is(err, scheduler.ErrConfigParse):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		case err != nil:
			c.Logger().Errorf("reschedule tenant %d: %v", tenantID, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "reschedule failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func runDigestHandler(s Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := s.RunNow(c.Request().Context()); err != nil {
			c.Logger().Errorf("run digest: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "digest failed"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "done"})
	}
}

type jobView struct {
	Tenant int64      `json:"tenant_id"`
	Kind   string     `json:"kind"`
	At     string     `json:"at"`
	Next   *time.Time `json:"next_run,omitempty"`
}

func listJobsHandler(s Scheduler) echo.HandlerFunc {
	return func(c echo.Context) error {
		jobs := s.Jobs()
		out := make([]jobView, 0, len(jobs))
		for _, j := range jobs {
			v := jobView{Tenant: j.Key.TenantID, Kind: string(j.Key.Kind), At: j.At.String()}
			if !j.Next.IsZero() {
				next := j.Next
				v.Next = &next
			}
			out = append(out, v)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"running": s.IsRunning(),
			"count":   len(out),
			"jobs":    out,
		})
	}
}

func listQueueHandler(q QueueLister) echo.HandlerFunc {
	return func(c echo.Context) error {
		tenantID, ok := tenantParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		}
		st, limit, offset := listParams(c)

		msgs, err := q.ListByTenant(c.Request().Context(), tenantID, st, limit, offset)
		if err != nil {
			c.Logger().Errorf("queue list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(msgs),
			"results": msgs,
		})
	}
}

func listDeliveriesHandler(repo repository.DeliveriesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if repo == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "reports disabled"})
		}
		tenantID, ok := tenantParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		}
		st, limit, offset := listParams(c)

		events, err := repo.ListByTenant(c.Request().Context(), tenantID, st, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(events),
			"results": events,
		})
	}
}

func tenantParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func listParams(c echo.Context) (model.MessageStatus, int, int) {
	limit := 50
	offset := 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := c.QueryParam("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	var st model.MessageStatus
	if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
		if tmp := model.MessageStatus(raw); tmp.Valid() {
			st = tmp
		}
	}
	return st, limit, offset
}
