package config

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "derot.yaml")
	if err := ioutil.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cfg, Default()); diff != "" {
		t.Errorf("empty file differs from Default(): got(-)/want(+):\n%s", diff)
	}
	if cfg.TCPAddr != ":5001" || cfg.Serial.Baud != 115200 || cfg.Serial.Chunk != 64 || cfg.Telescope.Baud != 9600 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Tick() != 2*time.Millisecond || cfg.MaxAccumulatedDeg != 60 {
		t.Errorf("tick %v, max accumulated %v", cfg.Tick(), cfg.MaxAccumulatedDeg)
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
telescope:
  type: lx200
  port: /dev/ttyUSB1
  latitude: -33.86
stepper:
  type: gpio
  step_pin: 6
  dir_pin: 7
  hall_pin: 18
serial:
  port: /dev/ttyAMA0
max_accumulated_deg: 0
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telescope.Type != "lx200" || cfg.Telescope.Latitude != -33.86 || cfg.Stepper.HallPin != 18 || cfg.Serial.Port != "/dev/ttyAMA0" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.MaxAccumulatedDeg != 0 {
		t.Errorf("MaxAccumulatedDeg = %v, want 0 when disabled", cfg.MaxAccumulatedDeg)
	}
}

func TestValidate(t *testing.T) {
	for _, test := range []struct {
		body string
		want string
	}{
		{"telescope: {type: meade}", "telescope.type"},
		{"telescope: {type: lx200}", "telescope.port"},
		{"telescope: {latitude: 95}", "latitude"},
		{"stepper: {type: servo}", "stepper.type"},
		{"stepper: {type: gpio}", "step_pin"},
		{"stepper: {type: modbus}", "modbus_port"},
		{"tick_ms: 250", "tick_ms"},
		{"stepper: {step_deg: -1}", "step_deg"},
	} {
		t.Run(test.body, func(t *testing.T) {
			_, err := Load(writeConfig(t, test.body))
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Load() = %v, want an error mentioning %q", err, test.want)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}
