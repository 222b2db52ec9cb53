// c4r-minimal - the smallest useful cloud4rpi device.
//
// Variables and diagnostics are declared in code rather than in a config
// file. The device token comes from C4R_DEVICE_TOKEN; everything else uses
// the defaults (MQTT to mq.cloud4rpi.io).
//
//	C4R_DEVICE_TOKEN=... c4r-minimal
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/cloud4rpi-go/internal/device"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/logging"
	"github.com/nerrad567/cloud4rpi-go/internal/runner"
	"github.com/nerrad567/cloud4rpi-go/internal/sysinfo"
	"github.com/nerrad567/cloud4rpi-go/internal/transport"
)

var version = "dev"

const (
	dataInterval = 30 * time.Second
	diagInterval = 60 * time.Second
	pollInterval = 500 * time.Millisecond
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Keyboard interrupt received. Stopping...")
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR! %s\n", transport.ErrorMessage(err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging, version)

	conn, err := transport.ConnectWithRetry(ctx, transport.RetryPolicyFromConfig(cfg.Transport), log,
		func() (*transport.MQTT, error) {
			return transport.DialMQTT(cfg.MQTT, cfg.Device.Token, log)
		})
	if err != nil {
		return err
	}
	defer conn.Close()

	dev := device.New(transport.NewAdapter(conn), device.WithLogger(log))
	if err := declare(dev, sysinfo.New()); err != nil {
		return err
	}

	loop, err := runner.New(dev, runner.Config{
		DataInterval:        dataInterval,
		DiagnosticsInterval: diagInterval,
		PollInterval:        pollInterval,
	}, runner.WithLogger(log))
	if err != nil {
		return err
	}

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// declare puts the example variables and diagnostics on dev.
func declare(dev *device.Device, sys *sysinfo.Collector) error {
	variables := []device.Variable{
		{Name: "RoomTemp", Type: device.TypeNumeric, Bind: device.Func0(func() (any, error) { return 25, nil })},
		{Name: "OutsideTemp", Type: device.TypeNumeric, Bind: device.Func0(func() (any, error) { return 4, nil })},
	}
	if err := dev.Declare(variables); err != nil {
		return err
	}

	diagnostics := []device.Diagnostic{
		{Name: "CPUTemp", Bind: device.ReaderFunc(sys.CPUTemperature)},
		{Name: "IPAddress", Bind: device.ReaderFunc(sys.IPAddress)},
		{Name: "Host", Bind: device.ReaderFunc(sys.Hostname)},
		{Name: "OS Name", Bind: device.ReaderFunc(sys.OSName)},
	}
	return dev.DeclareDiag(diagnostics)
}
