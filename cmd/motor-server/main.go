// Command motor-server serves one motor device over websocket.
//
// The device is described by a section of the YAML configuration file
// (see package config). A .env file in the working directory is loaded
// first, so MOTOR_CONFIG, MOTOR_LISTEN and MOTOR_LOG_LEVEL may be set there.
//
//	motor-server -config motors.yaml -section motor2
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/arloliu/go-motor/config"
	"github.com/arloliu/go-motor/controller"
	"github.com/arloliu/go-motor/device"
	"github.com/arloliu/go-motor/logger"
	"github.com/arloliu/go-motor/rpc/wsrpc"
)

var log logger.Logger

func main() {
	configPath := flag.String("config", "", "configuration file (default $"+config.EnvConfig+")")
	section := flag.String("section", "", "motor server section (default: the first one)")
	listSections := flag.Bool("list", false, "list the motor server sections and exit")
	flag.Parse()

	log = logger.Of("motor-server")

	if err := run(*configPath, *section, *listSections); err != nil {
		log.Error("motor server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, section string, listSections bool) error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	if listSections {
		for _, s := range cfg.Sections() {
			fmt.Println(s)
		}
		return nil
	}

	if section == "" {
		sections := cfg.Sections()
		if len(sections) == 0 {
			return errors.New("no motor server section configured")
		}
		section = sections[0]
	}

	srvCfg, err := cfg.Server(section)
	if err != nil {
		return err
	}
	log = log.With("section", section, "name", srvCfg.Name)

	dev, err := device.New(srvCfg.Device)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wsCfg, err := wsrpc.NewConfig(srvCfg.Listen, wsrpc.WithLogger(logger.Of("wsrpc").With("section", section)))
	if err != nil {
		return err
	}
	server, err := wsrpc.New(ctx, wsCfg)
	if err != nil {
		return err
	}

	ctrlCfg, err := controller.NewConfig(
		controller.WithServerInfo(serverInfo(srvCfg)),
		controller.WithRateWindow(cfg.RateWindow),
		controller.WithLogger(logger.Of("controller").With("section", section)),
	)
	if err != nil {
		return err
	}
	ctrl, err := controller.New(dev, server, server, ctrlCfg)
	if err != nil {
		return err
	}
	server.SetDiagnostics(ctrl.Diagnostics())

	if err := server.Start(); err != nil {
		ctrl.Terminate()
		return err
	}
	defer server.Close()

	log.Info("motor server started", "device", dev.Name(), "naxes", dev.NAxes(), "addr", server.Addr())

	err = controller.NewRunner(log).Run(ctx, ctrl, cfg.StepInterval)
	if errors.Is(err, context.Canceled) {
		log.Info("exit signal received")
		err = nil
	}
	log.Info("shutdown finished")

	return err
}

func serverInfo(srv config.ServerConfig) controller.ServerInfo {
	info := controller.ServerInfo{Name: srv.Name}

	host, port, err := net.SplitHostPort(srv.Listen)
	if err != nil {
		info.Host = srv.Listen
		return info
	}
	info.Host = host
	if n, err := strconv.Atoi(port); err == nil {
		info.Ports = []int{n}
	}

	return info
}
