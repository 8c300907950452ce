package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Freeeeeet/scheduler_engine/internal/service"
)

// ActorHeader заголовок с ID пользователя, проставляется внешним слоем авторизации
const ActorHeader = "X-Actor-ID"

type Options struct {
	Address        string
	DisableReqLogs bool

	Slots         *service.SlotStore
	Coordinator   *service.BookingCoordinator
	Notifications *service.NotificationBus
	Logger        *zap.Logger
}

type Server struct {
	opts *Options
	app  *echo.Echo
}

func NewServer(opts *Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.HidePort = true

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.Recover())
	if !s.opts.DisableReqLogs {
		s.app.Use(requestLogger(s.opts.Logger))
	}

	s.app.HTTPErrorHandler = newHTTPErrorHandler(s.opts.Logger)

	s.app.GET("/healthz", health)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.app.Group("/v1", requireActor)

	slots := &slotHandler{slots: s.opts.Slots, coordinator: s.opts.Coordinator}
	v1.POST("/slots", slots.create)
	v1.GET("/slots", slots.list)
	v1.GET("/slots/:id", slots.get)
	v1.POST("/slots/:id/requests", slots.requestBooking)
	v1.POST("/slots/:id/decision", slots.respond)
	v1.POST("/slots/:id/cancel", slots.cancel)
	v1.DELETE("/slots/:id", slots.withdraw)
	v1.GET("/calendar", slots.projectCalendar)

	notifications := &notificationHandler{bus: s.opts.Notifications}
	v1.GET("/notifications", notifications.list)
	v1.GET("/notifications/unread", notifications.unread)
	v1.POST("/notifications/read", notifications.markAllRead)
	v1.POST("/notifications/:id/read", notifications.markRead)
	v1.DELETE("/notifications/:id", notifications.remove)
}

// Start блокируется до остановки сервера
func (s *Server) Start() error {
	s.opts.Logger.Info("Starting HTTP server", zap.String("address", s.opts.Address))
	if err := s.app.Start(s.opts.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

// ServeHTTP для тестов
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("HTTP request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("actor_id", c.Request().Header.Get(ActorHeader)),
			)
			return nil
		},
	})
}

func requireActor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := c.Request().Header.Get(ActorHeader)
		if actor == "" {
			return errUnauthorized
		}
		c.Set("actor", actor)
		return next(c)
	}
}

func actorID(c echo.Context) string {
	actor, _ := c.Get("actor").(string)
	return actor
}
