package main

import (
	"context"
	"testing"

	"github.com/w1xm/derot/config"
	"github.com/w1xm/derot/internal/gpio"
	"github.com/w1xm/derot/stepper"
)

func TestOpenStepper(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	act, g, err := openStepper(ctx, config.StepperConfig{Type: "sim"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := act.(*stepper.Sim); !ok || g != nil {
		t.Errorf("sim stepper = %T, %v", act, g)
	}

	act, g, err = openStepper(ctx, config.StepperConfig{Type: "gpio", MockGPIO: true, StepPin: 6, DirPin: 7, HallPin: 18})
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	if _, ok := act.(*stepper.GPIO); !ok {
		t.Fatalf("gpio stepper = %T", act)
	}
	if err := act.Step(stepper.CW); err != nil {
		t.Fatal(err)
	}
	mock := g.(*gpio.MockDriver)
	if mock.Rises(6) != 1 || mock.Level(7) != gpio.High {
		t.Errorf("step pin rose %d times, dir pin %v", mock.Rises(6), mock.Level(7))
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	*tcpAddr, *scopePort = ":6001", "/dev/ttyUSB0"
	defer func() { *tcpAddr, *scopePort = "", "" }()
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TCPAddr != ":6001" || cfg.Telescope.Type != "lx200" || cfg.Telescope.Port != "/dev/ttyUSB0" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}
