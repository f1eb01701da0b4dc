package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	interval   time.Duration
	average    int
	debug      bool
}

var log = logrus.New()

func main() {

	// Parse command line options
	var opts options

	flag.StringVar(&opts.configPath, "config", "hxscale.yaml", "path to the configuration file")
	flag.DurationVar(&opts.interval, "interval", time.Second, "interval between weight readings")
	flag.IntVar(&opts.average, "average", 10, "number of readings to average per summary")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.Parse()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %s", err)
	}

	logger, err := scale.NewDefaultLogger(opts.debug)
	if err != nil {
		log.Fatal(err)
	}

	pins, err := gpio.NewPeriph()
	if err != nil {
		log.Fatalf("Failed to initialize GPIO: %s", err)
	}

	tx := message.NewQueue(cfg.Messages.QueueSize)
	s, err := hx711.New(pins, gpio.Pin(cfg.Pins.Clock), gpio.Pin(cfg.Pins.Data), tx, message.NewQueue(1),
		hx711.WithConfig(cfg),
		hx711.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to initialize scale: %s", err)
	}

	if cfg.Bluetooth.Enabled {
		p, err := btle.New(s, btle.WithDeviceName(cfg.Bluetooth.Name), btle.WithLogger(logger))
		if err != nil {
			log.Warnf("Failed to initialize bluetooth peripheral: %s", err)
		} else {
			defer p.Close()
		}
	}

	var window scale.DataPoints
	s.SetDataHandler(func(data scale.DataPoint) {
		log.Debugf("Read DATA from Handler: %.2f%s", data.Weight, data.Unit)
		if window = append(window, data); len(window) >= opts.average {
			log.Infof("Mean weight over %d readings: %.2fg", len(window), window.Mean())
			window = window[:0]
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("Got signal, terminating connection to device")
			if err := pins.Close(); err != nil {
				log.Warnf("Failed to release GPIO: %s", err)
			}
			return
		case <-ticker.C:
			grams, err := s.Grams(ctx)
			if err != nil {
				if errors.Is(err, hx711.ErrNotCalibrated) {
					log.Warnf("Scale is not calibrated, run `scaletool -calibrate` first")
				} else if !errors.Is(err, context.Canceled) {
					log.Errorf("Failed to read weight: %s", err)
				}
				continue
			}
			log.Infof("Weight: %.2fg (%v), status messages: %v", grams, s.Status().Gain, tx.Drain())
		}
	}
}
