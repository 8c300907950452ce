package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Freeeeeet/scheduler_engine/internal/model"
	"github.com/Freeeeeet/scheduler_engine/internal/service"
)

// notificationHandler журнал уведомлений текущего пользователя
type notificationHandler struct {
	bus *service.NotificationBus
}

func (h *notificationHandler) list(c echo.Context) error {
	list, err := h.bus.ListFor(c.Request().Context(), actorID(c))
	if err != nil {
		return err
	}
	if list == nil {
		list = []model.Notification{}
	}
	return c.JSON(http.StatusOK, echo.Map{"notifications": list})
}

func (h *notificationHandler) unread(c echo.Context) error {
	count, err := h.bus.UnreadCount(c.Request().Context(), actorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"unread": count})
}

func (h *notificationHandler) markRead(c echo.Context) error {
	if err := h.bus.MarkRead(c.Request().Context(), actorID(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *notificationHandler) markAllRead(c echo.Context) error {
	if err := h.bus.MarkAllRead(c.Request().Context(), actorID(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *notificationHandler) remove(c echo.Context) error {
	if err := h.bus.Remove(c.Request().Context(), actorID(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
