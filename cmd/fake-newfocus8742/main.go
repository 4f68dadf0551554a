// Command fake-newfocus8742 runs a simulated New Focus 8742 picomotor
// controller on TCP, for bench setups without hardware.
//
// The listen address is taken from the ADDR environment variable
// (default 127.0.0.1:23).
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-motor/device/picomotor"
	"github.com/arloliu/go-motor/logger"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	log := logger.Of("fake-newfocus8742")
	logger.SetLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	addr := "127.0.0.1:23"
	if val := os.Getenv("ADDR"); val != "" {
		addr = val
	}

	srv, err := picomotor.NewFakeServer(addr)
	if err != nil {
		log.Error("failed to start fake controller", "addr", addr, "error", err)
		os.Exit(1)
	}
	log.Info("fake controller listening", "addr", srv.Addr(), "id", picomotor.FakeID)

	exitSig := make(chan os.Signal, 1)
	signal.Notify(exitSig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	<-exitSig

	log.Info("exit signal received")

	if err := srv.Close(); err != nil {
		log.Error("failed to close fake controller", "error", err)
	}
	log.Info("shutdown finished")
}
