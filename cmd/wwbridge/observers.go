package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/viper"

	"github.com/winghaptics/wwbridge/internal/bridge"
	"github.com/winghaptics/wwbridge/internal/config"
	"github.com/winghaptics/wwbridge/internal/dispatcher"
	"github.com/winghaptics/wwbridge/internal/influx"
	"github.com/winghaptics/wwbridge/internal/natspub"
	"github.com/winghaptics/wwbridge/internal/storage"
)

// Observer queue sizes. Frame observers see one event per tick.
const (
	frameQueue  = 1024
	recordQueue = 64
)

// observers holds the sinks attached to the dispatcher.
type observers struct {
	a       *app
	backend storage.Backend
	influx  *influx.Manager
	nats    *natspub.Publisher
}

// registerObservers attaches the debug printer, storage, InfluxDB and NATS
// sinks that are enabled. A sink that fails to start is logged and skipped.
func registerObservers(ctx context.Context, d *dispatcher.Dispatcher, a *app) *observers {
	log := a.Logger
	o := &observers{a: a}

	if viper.GetBool("debug") {
		d.Register(dispatcher.TopicFrame, "debug", bridge.DebugPrinter(os.Stdout), dispatcher.Buffered(frameQueue))
	}

	storageCfg := config.GetStorageConfig()
	backend, err := storage.NewBackend(storageCfg, log, a.Zerolog)
	if err == nil {
		err = backend.Init()
	}
	if err != nil {
		log.Error("Failed to initialize storage, sessions will not be saved", "type", storageCfg.Type, "error", err)
	} else {
		o.backend = backend
		d.Register(dispatcher.TopicSession, "storage", storage.SessionHandler(backend), dispatcher.Buffered(recordQueue), dispatcher.Logged())
		d.Register(dispatcher.TopicStatus, "storage", storage.StatusHandler(backend), dispatcher.Buffered(recordQueue))
		log.Info("Storage initialized", "type", storageCfg.Type)
	}

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		m := influx.NewManager(influxCfg, a.Zerolog)
		if err := m.Connect(ctx); err != nil {
			log.Error("Failed to initialize InfluxDB", "error", err)
		} else {
			o.influx = m
			d.Register(dispatcher.TopicFrame, "influx", influx.FrameHandler(m), dispatcher.Buffered(frameQueue))
			d.Register(dispatcher.TopicStatus, "influx", influx.StatusHandler(m), dispatcher.Buffered(recordQueue))
			d.Register(dispatcher.TopicSession, "influx", influx.SessionHandler(m), dispatcher.Buffered(recordQueue))
		}
	}

	if natsCfg := config.GetNatsConfig(); natsCfg.Enabled {
		p, err := natspub.Connect(natsCfg, natspub.WithLogger(log))
		if err != nil {
			log.Error("Failed to connect to NATS", "error", err)
		} else {
			o.nats = p
			h := p.Handler()
			d.Register(dispatcher.TopicFrame, "nats", h, dispatcher.Buffered(frameQueue))
			d.Register(dispatcher.TopicStatus, "nats", h, dispatcher.Buffered(recordQueue))
			d.Register(dispatcher.TopicSession, "nats", h, dispatcher.Buffered(recordQueue))
			log.Info("Publishing events to NATS", "url", natsCfg.URL, "prefix", natsCfg.SubjectPrefix)
		}
	}

	return o
}

// Close releases every sink. The dispatcher must be closed first.
func (o *observers) Close() {
	var errs []error
	if o.backend != nil {
		errs = append(errs, o.backend.Close())
	}
	if o.influx != nil {
		errs = append(errs, o.influx.Close())
	}
	if o.nats != nil {
		o.nats.Close()
	}
	if err := errors.Join(errs...); err != nil {
		o.a.Logger.Error("Failed to close observers", "error", err)
	}
}
