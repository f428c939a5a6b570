// Command derot runs the field derotator: it tracks the telescope, drives
// the stepper and serves the control protocol over TCP, serial and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/w1xm/derot/config"
	"github.com/w1xm/derot/derotator"
	"github.com/w1xm/derot/dispatch"
	"github.com/w1xm/derot/host"
	"github.com/w1xm/derot/internal/gpio"
	"github.com/w1xm/derot/internal/modbus"
	"github.com/w1xm/derot/server"
	"github.com/w1xm/derot/settings"
	"github.com/w1xm/derot/stepper"
	"github.com/w1xm/derot/telescope"
	"github.com/w1xm/derot/web"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	cfgPath    = flag.String("config", "", "path to config file; defaults are used if empty")
	tcpAddr    = flag.String("addr", "", "override the protocol listen address")
	httpAddr   = flag.String("http", "", "override the web listen address")
	serialPort = flag.String("serial", "", "override the protocol serial port")
	scopePort  = flag.String("telescope", "", "LX200 serial port; implies telescope type lx200")
	staticDir  = flag.String("static_dir", "", "directory containing static files for the web interface")
)

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			return nil, err
		}
	}
	if *tcpAddr != "" {
		cfg.TCPAddr = *tcpAddr
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *serialPort != "" {
		cfg.Serial.Port = *serialPort
	}
	if *scopePort != "" {
		cfg.Telescope.Type = "lx200"
		cfg.Telescope.Port = *scopePort
	}
	return cfg, cfg.Validate()
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFile == "" {
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
	}))
}

func openTelescope(ctx context.Context, cfg config.TelescopeConfig) telescope.Source {
	switch cfg.Type {
	case "lx200":
		return telescope.ConnectLX200(ctx, cfg.Port, cfg.Baud, cfg.Latitude)
	}
	log.Printf("simulating a star at alt %.4f az %.4f", cfg.SimAlt, cfg.SimAz)
	return telescope.NewSimulator(cfg.Latitude, cfg.SimAlt, cfg.SimAz, time.Now())
}

// openStepper returns the actuator and, if the stepper has one, the GPIO
// driver the hall sensor is wired to.
func openStepper(ctx context.Context, cfg config.StepperConfig) (stepper.Actuator, gpio.Driver, error) {
	switch cfg.Type {
	case "gpio":
		g, err := gpio.NewDriver(cfg.MockGPIO)
		if err != nil {
			return nil, nil, err
		}
		s, err := stepper.NewGPIO(g, stepper.GPIOConfig{
			StepPin:   cfg.StepPin,
			DirPin:    cfg.DirPin,
			EnablePin: cfg.EnablePin,
		})
		if err != nil {
			g.Close()
			return nil, nil, err
		}
		return s, g, nil
	case "modbus":
		c := &modbus.Client{Port: cfg.ModbusPort, BaudRate: cfg.ModbusBaud, SlaveID: cfg.ModbusID}
		drive := stepper.NewModbus(c)
		c.Poll = drive.Poll
		if err := c.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return drive, nil, nil
	}
	return &stepper.Sim{}, nil, nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	setupLogging(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	act, g, err := openStepper(ctx, cfg.Stepper)
	if err != nil {
		log.Fatalf("init stepper failed: %v", err)
	}
	if g != nil {
		defer func() {
			if s, ok := act.(*stepper.GPIO); ok {
				if err := s.Disable(); err != nil {
					log.Printf("disabling stepper failed: %v", err)
				}
			}
			if err := g.Close(); err != nil {
				log.Printf("closing GPIO driver failed: %v", err)
			}
		}()
	}
	src := openTelescope(ctx, cfg.Telescope)

	ctrl := derotator.New(act, src, derotator.Config{
		StepDeg:    cfg.Stepper.StepDeg,
		DriveSpeed: cfg.Stepper.DriveSpeed,
	})
	store := &settings.Store{Path: cfg.Settings}
	d := dispatch.New(ctrl, store, settings.Defaults(cfg.Stepper.StepDeg))
	if err := d.Boot(); err != nil {
		log.Printf("loading settings: %v; using defaults", err)
	}

	tcpQueue := server.NewQueue("tcp")
	serialQueue := server.NewQueue("serial")
	webQueue := server.NewQueue("web")
	loop := host.New(ctrl, d, tcpQueue, serialQueue, webQueue)
	loop.MaxAccumulatedDeg = cfg.MaxAccumulatedDeg
	loop.Period = cfg.Tick()

	eg, ctx := errgroup.WithContext(ctx)

	if g != nil && cfg.Stepper.HallPin > 0 {
		hall, err := stepper.NewHallSensor(g, cfg.Stepper.HallPin, 0)
		if err != nil {
			log.Fatalf("init hall sensor failed: %v", err)
		}
		eg.Go(func() error {
			return hall.Watch(ctx, ctrl.HallTriggered)
		})
	}

	if _, err := server.ListenTCP(ctx, cfg.TCPAddr, tcpQueue); err != nil {
		log.Fatalf("listen on %s failed: %v", cfg.TCPAddr, err)
	}
	if cfg.Serial.Port != "" {
		s := &server.Serial{Port: cfg.Serial.Port, Baud: cfg.Serial.Baud, Chunk: cfg.Serial.Chunk, Queue: serialQueue}
		eg.Go(func() error {
			s.Run(ctx)
			return nil
		})
	}

	if cfg.HTTPAddr != "" {
		ws := web.NewServer(webQueue, loop.Jog)
		loop.StatusCallback = ws.StatusCallback
		srv := &http.Server{
			Handler:     ws.Handler(*staticDir),
			Addr:        cfg.HTTPAddr,
			ReadTimeout: 15 * time.Second,
		}
		eg.Go(func() error {
			log.Printf("web interface on %s", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	eg.Go(func() error {
		return loop.Run(ctx)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
	log.Print("derotator stopped")
}
