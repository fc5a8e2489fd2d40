package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/trailgraph/internal/bootstrap"
	"github.com/OFFIS-RIT/trailgraph/internal/queue"
	mid "github.com/OFFIS-RIT/trailgraph/internal/server/middleware"
	"github.com/OFFIS-RIT/trailgraph/internal/util"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New creates the echo instance with all middleware and routes.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(util.GetEnvString("BODY_LIMIT", "32M")))

	RegisterRoutes(e)
	return e
}

func Init() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx)
	if err != nil {
		logger.Fatal("[Server] Failed to initialize", "err", err)
	}
	defer rt.Close()
	go rt.SweepSessions(ctx, time.Hour)

	app := &mid.App{
		Manager:        rt.Manager,
		S3:             rt.S3,
		Bucket:         rt.Bucket,
		PublicS3URL:    rt.PublicS3URL,
		Collectors:     rt.Collectors,
		CollectTimeout: rt.CollectTimeout,
	}

	if util.GetEnvBool("QUEUE_ENABLED", true) {
		que := queue.Init()
		defer que.Close()
		ch, err := que.Channel()
		if err != nil {
			logger.Fatal("[Server] Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, queue.Queues); err != nil {
			logger.Fatal("[Server] Failed to set up queues", "err", err)
		}
		app.Queue = ch
	}

	e := New(app)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("[Server] Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("[Server] Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("[Server] Failed to shutdown server", "err", err)
	}
}
