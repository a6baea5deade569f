package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/wardflow/pkg/stream"
)

// serveStream exposes the event hub at /events until ctx is cancelled.
func serveStream(ctx context.Context, logger *slog.Logger, hub *stream.Hub, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/events", hub)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			logger.Error("Failed to stop event stream server", "error", err)
		}
	}()

	logger.InfoContext(ctx, "Serving event stream", "port", port, "path", "/events")

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
