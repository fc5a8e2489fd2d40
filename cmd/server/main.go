package main

import (
	"github.com/OFFIS-RIT/trailgraph/internal/server"
	"github.com/OFFIS-RIT/trailgraph/internal/util"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger"
	"github.com/OFFIS-RIT/trailgraph/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		JSON:   util.GetEnvBool("LOG_JSON", false),
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	server.Init()
}
