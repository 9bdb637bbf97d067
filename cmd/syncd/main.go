package main

import (
	"go-attendsync/internal/app"
	"go-attendsync/internal/shared/apperror"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	apperror.Init()

	if err := app.RunSyncd(); err != nil {
		logger.Fatal("run syncd failed", zap.Error(err))
	}
}
