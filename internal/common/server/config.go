package server

import (
	"net/http"
	"time"

	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
)

const writeTimeoutSlack = 5 * time.Second

type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

// DefaultServerConfig keeps the write timeout above the request timeout so
// handlers can still write their 503 envelope after a store deadline.
func DefaultServerConfig(port string, requestTimeout time.Duration) ServerConfig {
	writeTimeout := constants.ServerWriteTimeout
	if minimum := requestTimeout + writeTimeoutSlack; minimum > writeTimeout {
		writeTimeout = minimum
	}

	return ServerConfig{
		Addr:              ":" + port,
		ReadHeaderTimeout: constants.ServerReadHeaderTimeout,
		ReadTimeout:       constants.ServerReadTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       constants.ServerIdleTimeout,
		MaxHeaderBytes:    constants.ServerMaxHeaderBytes,
	}
}

func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}
