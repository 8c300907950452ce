package httpapi

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Freeeeeet/scheduler_engine/internal/calendar"
	"github.com/Freeeeeet/scheduler_engine/internal/model"
	"github.com/Freeeeeet/scheduler_engine/internal/service"
)

type slotHandler struct {
	slots       *service.SlotStore
	coordinator *service.BookingCoordinator
}

type createSlotRequest struct {
	StartTime   time.Time      `json:"start_time"`
	EndTime     time.Time      `json:"end_time"`
	Subject     string         `json:"subject"`
	SessionType string         `json:"session_type"`
	Location    model.Location `json:"location"`
}

type versionRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

type decisionRequest struct {
	Decision        model.Decision `json:"decision"`
	ExpectedVersion int64          `json:"expected_version"`
}

// create POST /v1/slots, владелец слота это текущий пользователь
func (h *slotHandler) create(c echo.Context) error {
	var body createSlotRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	slot, err := h.slots.CreateSlot(c.Request().Context(), model.SlotInput{
		OwnerID:     actorID(c),
		StartTime:   body.StartTime,
		EndTime:     body.EndTime,
		Subject:     body.Subject,
		SessionType: body.SessionType,
		Location:    body.Location,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, slot)
}

func (h *slotHandler) get(c echo.Context) error {
	slot, err := h.slots.GetSlot(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slot)
}

// list GET /v1/slots?owner_id=&occupant_id=&state=&from=&to=
func (h *slotHandler) list(c echo.Context) error {
	from, err := queryTime(c, "from")
	if err != nil {
		return err
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return err
	}

	seq, err := h.slots.ListSlots(c.Request().Context(), model.SlotFilter{
		OwnerID:    c.QueryParam("owner_id"),
		OccupantID: c.QueryParam("occupant_id"),
		State:      model.SlotState(c.QueryParam("state")),
		From:       from,
		To:         to,
	})
	if err != nil {
		return err
	}

	slots := slices.Collect(seq)
	if slots == nil {
		slots = []model.Slot{}
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": slots})
}

func (h *slotHandler) requestBooking(c echo.Context) error {
	var body versionRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	slot, err := h.coordinator.RequestBooking(c.Request().Context(), model.BookingRequest{
		SlotID:          c.Param("id"),
		RequesterID:     actorID(c),
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *slotHandler) respond(c echo.Context) error {
	var body decisionRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	slot, err := h.coordinator.RespondToRequest(c.Request().Context(), c.Param("id"), body.ExpectedVersion, body.Decision, actorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slot)
}

func (h *slotHandler) cancel(c echo.Context) error {
	var body versionRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	slot, err := h.coordinator.CancelBooking(c.Request().Context(), c.Param("id"), body.ExpectedVersion, actorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slot)
}

// withdraw DELETE /v1/slots/:id?expected_version=
func (h *slotHandler) withdraw(c echo.Context) error {
	version, err := strconv.ParseInt(c.QueryParam("expected_version"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "expected_version is required")
	}

	slot, err := h.coordinator.WithdrawSlot(c.Request().Context(), c.Param("id"), version, actorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slot)
}

// projectCalendar GET /v1/calendar?from=&to=&bucket=&grid=&week_start=&owner_id=&occupant_id=
func (h *slotHandler) projectCalendar(c echo.Context) error {
	from, err := queryTime(c, "from")
	if err != nil {
		return err
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "from and to are required")
	}

	var opts calendar.Options
	if raw := c.QueryParam("bucket"); raw != "" {
		if opts.BucketSize, err = time.ParseDuration(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid bucket")
		}
	}
	if raw := c.QueryParam("grid"); raw != "" {
		if opts.Grid, err = strconv.ParseBool(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid grid")
		}
	}
	if raw := c.QueryParam("week_start"); raw != "" {
		day, err := strconv.Atoi(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid week_start")
		}
		opts.WeekStart = time.Weekday(day)
	}

	// Сетка может начинаться до from и заканчиваться после to
	filter := model.SlotFilter{
		OwnerID:    c.QueryParam("owner_id"),
		OccupantID: c.QueryParam("occupant_id"),
		From:       from,
		To:         to,
	}
	if opts.Grid {
		filter.From = from.AddDate(0, 0, -7)
		filter.To = from.AddDate(0, 0, calendar.GridDays)
		if to.After(filter.To) {
			filter.To = to
		}
	}

	seq, err := h.slots.ListSlots(c.Request().Context(), filter)
	if err != nil {
		return err
	}

	projection, err := calendar.Project(slices.Collect(seq), from, to, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, projection)
}

func queryTime(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid %s, expected RFC3339", name))
	}
	return t, nil
}
