package middleware

import (
	"time"

	"github.com/OFFIS-RIT/trailgraph/internal/collect"
	"github.com/OFFIS-RIT/trailgraph/internal/queue"
	"github.com/OFFIS-RIT/trailgraph/pkg/graph"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
)

// App is the state shared by all request handlers. Queue is nil when the
// server runs without RabbitMQ; asynchronous requests are then rejected.
// S3 is nil without a configured bucket.
type App struct {
	Manager        *graph.Manager
	Queue          queue.Channel
	S3             *s3.Client
	Bucket         string
	PublicS3URL    string
	Collectors     *collect.Factory
	CollectTimeout time.Duration
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
