package statusapi

import (
	"context"
	"net/http"

	"github.com/MrPunder/client-relay-bot/internal/logger"
)

type middlewareFunc func(next http.Handler) http.Handler

// StatusServer — HTTP-сервер служебного API
type StatusServer struct {
	log         logger.Logger
	middlewares []middlewareFunc
	mux         http.Handler
	address     string
	server      *http.Server
}

func NewStatusServer(address string, mux http.Handler, log logger.Logger) *StatusServer {
	return &StatusServer{
		address: address,
		mux:     mux,
		log:     log,
	}
}

// AddMiddleware навешивает middleware поверх маршрутизатора. Последний
// добавленный оказывается самым внешним.
func (ss *StatusServer) AddMiddleware(funcs ...middlewareFunc) {
	ss.middlewares = append(ss.middlewares, funcs...)
}

func (ss *StatusServer) RunServer() {
	handler := ss.mux
	for _, f := range ss.middlewares {
		handler = f(handler)
	}

	ss.server = &http.Server{
		Addr:    ss.address,
		Handler: handler,
	}
	ss.log.Infof("Запуск служебного API на %s", ss.address)
	if err := ss.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		ss.log.Errorf("Ошибка сервера на %s: %s", ss.address, err)
	}
}

func (ss *StatusServer) Shutdown(ctx context.Context) error {
	if ss.server == nil {
		return nil
	}
	return ss.server.Shutdown(ctx)
}
