package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/peercall/peercall/internal/logging"
	"github.com/peercall/peercall/internal/server"
	"github.com/peercall/peercall/internal/signaling"
)

func main() {
	logging.Init()

	reg := signaling.NewRegistry()
	hub := signaling.NewHub(reg)
	go hub.Run()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	addr := ":" + port

	slog.Info("starting signaling server", "addr", addr)
	if err := http.ListenAndServe(addr, server.NewMux(hub, reg)); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}
