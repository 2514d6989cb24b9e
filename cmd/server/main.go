package main

import (
	"github.com/cartonhq/carton/internal/server"
	"github.com/cartonhq/carton/internal/util"
	"github.com/cartonhq/carton/pkg/logger"
	"github.com/cartonhq/carton/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
