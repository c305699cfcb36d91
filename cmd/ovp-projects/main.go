package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/OpenVolunteeringPlatform/ovp-projects/internal/app"
)

var closeFinished = flag.Bool("close-finished", false, "run the finished-project sweep once and exit")

func main() {
	flag.Parse()

	if *closeFinished {
		if err := app.RunCloseFinished(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Finished-project sweep failed")
		}
		return
	}

	application := app.New()

	go func() {
		if err := application.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}
