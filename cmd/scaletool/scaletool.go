package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fako1024/hxscale/pkg/api"
	"github.com/fako1024/hxscale/pkg/btle"
	"github.com/fako1024/hxscale/pkg/config"
	"github.com/fako1024/hxscale/pkg/gpio"
	"github.com/fako1024/hxscale/pkg/hx711"
	"github.com/fako1024/hxscale/pkg/message"
	"github.com/fako1024/hxscale/pkg/scale"
	"github.com/sirupsen/logrus"
)

type options struct {
	configPath string
	debug      bool

	tare      bool
	gain      int
	calibrate bool
	listen    string
}

var log = logrus.New()

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() (err error) {

	// Parse command line options
	var opts options

	flag.StringVar(&opts.configPath, "config", "hxscale.yaml", "Path to the configuration file")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&opts.tare, "tare", false, "Set the zero point")
	flag.IntVar(&opts.gain, "gain", 0, "Set the amplifier gain (64 or 128)")
	flag.BoolVar(&opts.calibrate, "calibrate", false, "Run the interactive calibration")
	flag.StringVar(&opts.listen, "listen", "", "Serve the REST API on this address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.listen != "" {
		cfg.API.Listen = opts.listen
	}
	if opts.debug {
		log.SetLevel(logrus.DebugLevel)
	}

	logger, err := scale.NewDefaultLogger(opts.debug)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pins, err := gpio.NewPeriph()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pins.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	// Forward status messages to the serial console (if configured) or the log
	tx := message.NewQueue(cfg.Messages.QueueSize)
	out, err := messageSink(cfg)
	if err != nil {
		return err
	}
	fwdCtx, stopForwarding := context.WithCancel(context.Background())
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		if ferr := message.Forward(fwdCtx, tx, out); ferr != nil && !errors.Is(ferr, context.Canceled) {
			log.Warnf("status message forwarding stopped: %s", ferr)
		}
	}()

	// Flush pending status messages before the sink is closed
	defer func() {
		stopForwarding()
		<-forwarded
		out.Close()
	}()

	s, err := hx711.New(pins, gpio.Pin(cfg.Pins.Clock), gpio.Pin(cfg.Pins.Data), tx, message.NewQueue(1),
		hx711.WithConfig(cfg),
		hx711.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize scale: %w", err)
	}

	if opts.gain != 0 {
		gain, err := hx711.ParseGain(opts.gain)
		if err != nil {
			return err
		}
		if err := s.SetGain(gain); err != nil {
			return err
		}
	}
	if opts.tare {
		if err := s.Tare(ctx); err != nil {
			return err
		}
		log.Infof("Zero point set to %d", s.Offset())
	}
	if opts.calibrate {
		if err := s.Calibrate(ctx); err != nil {
			return err
		}
		status := s.Status()
		log.Infof("Calibrated in %v: offset %d, scale factor %.4f (add to config to skip calibration on restart)",
			status.CalibrationTime, status.Offset, status.ScaleFactor)
	}

	if cfg.API.Listen == "" {
		return nil
	}

	if cfg.Bluetooth.Enabled {
		p, err := btle.New(s, btle.WithDeviceName(cfg.Bluetooth.Name), btle.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to initialize bluetooth peripheral: %w", err)
		}
		defer p.Close()
	}

	srv := api.New(s, logger)
	go func() {
		<-ctx.Done()
		log.Infof("Got signal, shutting down API")
		if err := srv.Shutdown(); err != nil {
			log.Warnf("failed to shut down API: %s", err)
		}
	}()

	log.Infof("Serving API on %s", cfg.API.Listen)
	return srv.Listen(cfg.API.Listen)
}

func messageSink(cfg *config.Config) (io.WriteCloser, error) {
	if cfg.Messages.SerialPort != "" {
		return message.OpenSerial(cfg.Messages.SerialPort, cfg.Messages.BaudRate)
	}

	return log.WriterLevel(logrus.InfoLevel), nil
}
