// Package config loads the derotator daemon's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type TelescopeConfig struct {
	Type     string  `yaml:"type"` // "simulator" or "lx200"
	Port     string  `yaml:"port"`
	Baud     int     `yaml:"baud"`
	Latitude float64 `yaml:"latitude"` // used until the mount reports its site
	// Starting pointing of the simulator.
	SimAlt float64 `yaml:"sim_alt"`
	SimAz  float64 `yaml:"sim_az"`
}

type StepperConfig struct {
	Type       string  `yaml:"type"` // "sim", "gpio" or "modbus"
	StepDeg    float64 `yaml:"step_deg"`
	DriveSpeed float64 `yaml:"drive_speed"` // steps per second
	MockGPIO   bool    `yaml:"mock_gpio"`
	StepPin    int     `yaml:"step_pin"`
	DirPin     int     `yaml:"dir_pin"`
	EnablePin  int     `yaml:"enable_pin"` // 0 = not connected
	HallPin    int     `yaml:"hall_pin"`   // 0 = no hall sensor
	ModbusPort string  `yaml:"modbus_port"`
	ModbusBaud int     `yaml:"modbus_baud"`
	ModbusID   byte    `yaml:"modbus_id"`
}

type SerialConfig struct {
	Port  string `yaml:"port"` // empty disables the serial transport
	Baud  int    `yaml:"baud"`
	Chunk int    `yaml:"chunk"` // largest single write
}

type Config struct {
	Telescope TelescopeConfig `yaml:"telescope"`
	Stepper   StepperConfig   `yaml:"stepper"`
	Serial    SerialConfig    `yaml:"serial"`
	TCPAddr   string          `yaml:"tcp_addr"`
	HTTPAddr  string          `yaml:"http_addr"` // empty disables the web interface
	Settings  string          `yaml:"settings"`
	LogFile   string          `yaml:"log_file"` // empty logs to stderr only
	TickMs    int             `yaml:"tick_ms"`
	// MaxAccumulatedDeg stops tracking once reached. 0 disables.
	MaxAccumulatedDeg float64 `yaml:"max_accumulated_deg"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	cfg.MaxAccumulatedDeg = 60
	return cfg
}

func (c *Config) setDefaults() {
	if c.Telescope.Type == "" {
		c.Telescope.Type = "simulator"
	}
	if c.Telescope.Baud == 0 {
		c.Telescope.Baud = 9600
	}
	if c.Telescope.Latitude == 0 {
		c.Telescope.Latitude = 41.8369
	}
	if c.Telescope.SimAlt == 0 && c.Telescope.SimAz == 0 {
		c.Telescope.SimAlt, c.Telescope.SimAz = 30.2032, 300.938
	}
	if c.Stepper.Type == "" {
		c.Stepper.Type = "sim"
	}
	if c.Stepper.StepDeg == 0 {
		c.Stepper.StepDeg = 0.05970731707
	}
	if c.Stepper.DriveSpeed == 0 {
		c.Stepper.DriveSpeed = 100
	}
	if c.Stepper.ModbusBaud == 0 {
		c.Stepper.ModbusBaud = 19200
	}
	if c.Stepper.ModbusID == 0 {
		c.Stepper.ModbusID = 1
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 115200
	}
	if c.Serial.Chunk == 0 {
		c.Serial.Chunk = 64
	}
	if c.TCPAddr == "" {
		c.TCPAddr = ":5001"
	}
	if c.Settings == "" {
		c.Settings = "derot_settings.yaml"
	}
	if c.TickMs == 0 {
		c.TickMs = 2
	}
}

// Load reads a YAML file, fills in defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := &Config{MaxAccumulatedDeg: 60}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Telescope.Type {
	case "simulator":
	case "lx200":
		if c.Telescope.Port == "" {
			return fmt.Errorf("telescope.port is required for lx200")
		}
	default:
		return fmt.Errorf("unknown telescope.type %q", c.Telescope.Type)
	}
	if c.Telescope.Latitude < -90 || c.Telescope.Latitude > 90 {
		return fmt.Errorf("telescope.latitude must be within ±90, got %.4f", c.Telescope.Latitude)
	}
	switch c.Stepper.Type {
	case "sim":
	case "gpio":
		if c.Stepper.StepPin <= 0 || c.Stepper.DirPin <= 0 {
			return fmt.Errorf("stepper.step_pin and stepper.dir_pin are required for gpio")
		}
	case "modbus":
		if c.Stepper.ModbusPort == "" {
			return fmt.Errorf("stepper.modbus_port is required for modbus")
		}
	default:
		return fmt.Errorf("unknown stepper.type %q", c.Stepper.Type)
	}
	if c.Stepper.StepDeg < 0 {
		return fmt.Errorf("stepper.step_deg must be > 0, got %g", c.Stepper.StepDeg)
	}
	if c.Stepper.DriveSpeed < 0 {
		return fmt.Errorf("stepper.drive_speed must be > 0, got %g", c.Stepper.DriveSpeed)
	}
	if c.Tick() >= 100*time.Millisecond || c.TickMs < 0 {
		return fmt.Errorf("tick_ms must be between 1 and 99, got %d", c.TickMs)
	}
	if c.Serial.Chunk < 0 {
		return fmt.Errorf("serial.chunk must be > 0, got %d", c.Serial.Chunk)
	}
	if c.MaxAccumulatedDeg < 0 {
		return fmt.Errorf("max_accumulated_deg must be >= 0, got %g", c.MaxAccumulatedDeg)
	}
	return nil
}

// Tick returns the host loop period.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}
