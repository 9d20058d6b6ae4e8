package main

import (
	"github.com/covid19cz/erouska-push/internal/app"
	"github.com/covid19cz/erouska-push/internal/functions/sendpush"
	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/utils"
	server "github.com/covid19cz/erouska-push/pkg/httpserver"
	"github.com/sethvargo/go-signalcontext"
)

func main() {

	ctx, done := signalcontext.OnInterrupt()
	defer done()

	logger := logging.FromContext(ctx)

	config, err := utils.LoadConfig(ctx)
	if err != nil {
		logger.Fatalf("utils.LoadConfig: %v", err)
	}

	if logger, err = logging.NewLogger(config.LogLevel); err != nil {
		logging.FromContext(ctx).Fatalf("logging.NewLogger: %v", err)
	}
	defer logger.Sync()
	ctx = logging.WithLogger(ctx, logger)

	a, err := app.New(ctx, config)
	if err != nil {
		logger.Fatalf("app.New: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("app.Close: %v", err)
		}
	}()

	handler := server.NewHandler(ctx, sendpush.NewHandler(a.Sender, a.Secrets, config.APIKeySecret))

	srv, err := server.NewServer(ctx, &server.Config{Port: config.Port})
	if err != nil {
		logger.Fatalf("server.NewServer: %v", err)
	}
	logger.Infof("listening on %s", srv.Addr())

	if err := srv.ServeHTTPHandler(ctx, handler); err != nil {
		logger.Fatal(err)
	}
}
