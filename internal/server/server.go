package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"roomchat/internal/avatars"
	"roomchat/internal/realtime"
	"roomchat/internal/session"
	"roomchat/internal/storage"
)

// Server defines fields used in HTTP processing
type Server struct {
	logger        *zap.SugaredLogger
	httpServer    *http.Server
	store         *storage.Store
	afterShutdown []func()
	h             handler
}

// NewServer wires the store, session manager, realtime hub and avatar storage
// into an HTTP server. av may be nil when no object storage is configured;
// the upload endpoint then reports itself unavailable.
func NewServer(logger *zap.SugaredLogger, st *storage.Store, sessions *session.Manager,
	hub *realtime.Hub, av *avatars.Storage, opts ...Option) (*Server, error) {

	srv := &Server{
		logger: logger,
		store:  st,
		h: handler{
			logger:   logger,
			store:    st,
			sessions: sessions,
			hub:      hub,
			parsers: parsers{
				createRoomPool:   fastjson.ParserPool{},
				joinRoomPool:     fastjson.ParserPool{},
				sendMessagePool:  fastjson.ParserPool{},
				sendPersonalPool: fastjson.ParserPool{},
				threadPool:       fastjson.ParserPool{},
			},
		},
	}
	if av != nil {
		srv.h.avatars = av
	}

	mux := http.NewServeMux()
	mux.Handle("/rooms/create", enforcePOSTJSON(http.HandlerFunc(srv.h.createRoom)))
	mux.Handle("/rooms/join", enforcePOSTJSON(http.HandlerFunc(srv.h.joinRoom)))
	mux.Handle("/rooms/leave", enforcePOSTJSON(srv.h.authenticate(http.HandlerFunc(srv.h.leaveRoom))))
	mux.Handle("/messages/send", enforcePOSTJSON(srv.h.authenticate(http.HandlerFunc(srv.h.sendMessage))))
	mux.Handle("/messages/list", enforcePOSTJSON(srv.h.authenticate(http.HandlerFunc(srv.h.listMessages))))
	mux.Handle("/participants/list", enforcePOSTJSON(srv.h.authenticate(http.HandlerFunc(srv.h.listParticipants))))
	mux.Handle("/personal/send", enforcePOSTJSON(srv.h.authenticate(http.HandlerFunc(srv.h.sendPersonal))))
	mux.Handle("/personal/thread", enforcePOSTJSON(srv.h.authenticate(http.HandlerFunc(srv.h.personalThread))))
	mux.Handle("/avatars/upload", http.HandlerFunc(srv.h.uploadAvatar))
	mux.Handle("/rooms/events", http.HandlerFunc(srv.h.roomEvents))

	c := &config{
		httpServer: &http.Server{
			Addr:    "0.0.0.0:9000",
			Handler: log(mux, logger.Desugar()),
		},
	}

	for _, opt := range opts {
		opt.apply(c)
	}

	srv.httpServer = c.httpServer
	srv.afterShutdown = c.afterShutdown

	return srv, nil
}

// Start calls ListenAndServe on http.Server instance inside Server struct
// and implements graceful shutdown via goroutine waiting for signals
func (s *Server) Start() error {
	idleConnsClosed := make(chan struct{})

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		s.logger.Info("Shutting down HTTP server")

		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.Errorf("srv.Shutdown: %v", err)
		}
		s.logger.Info("HTTP server is stopped")

		close(idleConnsClosed)
	}()

	s.logger.Infof("Starting HTTP server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("s.httpServer.ListenAndServe: %v", err)
	}

	<-idleConnsClosed

	for _, f := range s.afterShutdown {
		f()
	}

	s.logger.Info("Closing store")
	s.store.Close()
	s.logger.Info("Store is closed")

	return nil
}
