package functions

import (
	"context"
	"net/http"
	"sync"

	"github.com/covid19cz/erouska-push/internal/app"
	"github.com/covid19cz/erouska-push/internal/functions/sendpush"
	"github.com/covid19cz/erouska-push/internal/logging"
	"github.com/covid19cz/erouska-push/internal/utils"
	"github.com/covid19cz/erouska-push/internal/utils/errors"
	httputils "github.com/covid19cz/erouska-push/internal/utils/http"
)

var (
	initOnce sync.Once
	handler  *sendpush.Handler
	initErr  error
)

func getHandler(ctx context.Context) (*sendpush.Handler, error) {
	initOnce.Do(func() {
		logger := logging.FromContext(ctx).Named("functions.init")

		config, err := utils.LoadConfig(ctx)
		if err != nil {
			initErr = errors.NewConfigurationError("%v", err)
			return
		}

		// instance lives across invocations, request context must not bound it
		a, err := app.New(context.WithoutCancel(ctx), config)
		if err != nil {
			logger.Errorf("Could not initialize push backend: %v", err)
			initErr = err
			return
		}

		handler = sendpush.NewHandler(a.Sender, a.Secrets, config.APIKeySecret)
	})

	return handler, initErr
}

func serve(w http.ResponseWriter, r *http.Request, f func(h *sendpush.Handler) http.HandlerFunc) {
	h, err := getHandler(r.Context())
	if err != nil {
		httputils.SendErrorResponse(w, r, err)
		return
	}
	f(h)(w, r)
}

// SendToGroup SendToGroup handler.
func SendToGroup(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(h *sendpush.Handler) http.HandlerFunc { return h.SendToGroup })
}

// SendToDevice SendToDevice handler.
func SendToDevice(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(h *sendpush.Handler) http.HandlerFunc { return h.SendToDevice })
}

// FetchExpiredRegistrations FetchExpiredRegistrations handler.
func FetchExpiredRegistrations(w http.ResponseWriter, r *http.Request) {
	serve(w, r, func(h *sendpush.Handler) http.HandlerFunc { return h.FetchExpiredRegistrations })
}
