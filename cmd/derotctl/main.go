// Command derotctl sends commands to a derotator.
//
//	derotctl -addr 192.168.1.20 goto 12.5
//	derotctl -serial /dev/ttyUSB0 status
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/w1xm/derot/client"
	"github.com/w1xm/derot/wire"
)

var (
	addr       = flag.String("addr", "", "derotator address, host[:port]")
	serialPort = flag.String("serial", "", "derotator serial port")
	baud       = flag.Int("baud", 115200, "serial baud rate")
	timeout    = flag.Duration("timeout", 2*time.Minute, "how long to wait for moves to finish")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `usage: derotctl [flags] command [args]

commands:
  start | stop | hall-home | user-home
  goto DEG                 turn to DEG from user home and wait
  sweep FROM TO SECONDS    step from FROM to TO over SECONDS
  theta | altaz | status
  set-home DEG | set-max-cw DEG | set-max-ccw DEG
  limits on|off | clockwise on|off
  save | load | defaults
  ssid NAME | password PASS | security 0-3
  omega RAD_PER_SEC
  raw CODE [IVALUE [FVALUE]]

flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, *timeout)
	defer cancel()

	var c *client.Conn
	var err error
	switch {
	case *serialPort != "":
		c, err = client.OpenSerial(*serialPort, *baud)
	case *addr != "":
		c, err = client.Dial(ctx, *addr)
	default:
		log.Fatal("one of -addr or -serial is required")
	}
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	if err := run(ctx, c, os.Stdout, flag.Args()); err != nil {
		log.Fatal(err)
	}
}

var simple = map[string]wire.Command{
	"start":     wire.Start,
	"stop":      wire.Stop,
	"hall-home": wire.GotoHallHome,
	"user-home": wire.GotoUserHome,
	"save":      wire.SaveSettings,
	"load":      wire.LoadSettings,
	"defaults":  wire.LoadDefaults,
}

var angles = map[string]wire.Command{
	"set-home":    wire.SetUserHome,
	"set-max-cw":  wire.SetMaxCW,
	"set-max-ccw": wire.SetMaxCCW,
}

var toggles = map[string]wire.Command{
	"limits":    wire.EnableLimits,
	"clockwise": wire.SetClockwise,
}

func floatArgs(args []string, n int) ([]float64, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%s takes %d arguments", args[0], n-1)
	}
	out := make([]float64, 0, n-1)
	for _, a := range args[1:] {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func run(ctx context.Context, c *client.Conn, w io.Writer, args []string) error {
	name := args[0]
	if cmd, ok := simple[name]; ok {
		_, err := c.Command(cmd, 0, 0)
		return err
	}
	if cmd, ok := angles[name]; ok {
		f, err := floatArgs(args, 2)
		if err != nil {
			return err
		}
		_, err = c.Command(cmd, 0, float32(f[0]))
		return err
	}
	if cmd, ok := toggles[name]; ok {
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return fmt.Errorf("usage: %s on|off", name)
		}
		var v int16
		if args[1] == "on" {
			v = 1
		}
		_, err := c.Command(cmd, v, 0)
		return err
	}
	switch name {
	case "goto":
		f, err := floatArgs(args, 2)
		if err != nil {
			return err
		}
		return c.Goto(ctx, f[0])
	case "sweep":
		f, err := floatArgs(args, 4)
		if err != nil {
			return err
		}
		return c.Sweep(ctx, f[0], f[1], time.Duration(f[2]*float64(time.Second)))
	case "theta":
		theta, err := c.Theta()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%.4f\n", theta)
		return nil
	case "altaz":
		rp, err := c.Command(wire.GetAltAzZeta, 0, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "alt %.4f az %.4f accumulated %.4f theta %.4f\n", rp.FValue[0], rp.FValue[1], rp.FValue[2], rp.FValue[3])
		return nil
	case "status":
		sp, err := c.QueryState()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "theta:            %.4f\n", sp.AngleDeg)
		fmt.Fprintf(w, "accumulated:      %.4f\n", sp.AccumulatedAngleDeg)
		fmt.Fprintf(w, "user home:        %d steps\n", sp.HomePos)
		fmt.Fprintf(w, "limits:           %d..%d steps, enabled %v\n", sp.MaxCCW, sp.MaxCW, sp.LimitsEnabled != 0)
		fmt.Fprintf(w, "clockwise:        %v\n", sp.CorrectionClockwise != 0)
		fmt.Fprintf(w, "earth omega:      %g rad/s\n", sp.EarthOmega)
		fmt.Fprintf(w, "wlan:             %q security %d\n", sp.SSID(), sp.WLANSecurity)
		return nil
	case "ssid", "password":
		if len(args) != 2 {
			return fmt.Errorf("usage: %s VALUE", name)
		}
		cmd := wire.SetWLANSSID
		if name == "password" {
			cmd = wire.SetWLANPassword
		}
		return c.SetString(cmd, args[1])
	case "security":
		f, err := floatArgs(args, 2)
		if err != nil {
			return err
		}
		_, err = c.Command(wire.SetWLANSecurity, int16(f[0]), 0)
		return err
	case "omega":
		f, err := floatArgs(args, 2)
		if err != nil {
			return err
		}
		return c.SetOmega(f[0])
	case "raw":
		if len(args) < 2 || len(args) > 4 {
			return fmt.Errorf("usage: raw CODE [IVALUE [FVALUE]]")
		}
		var v [3]float64
		for i, a := range args[1:] {
			f, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return err
			}
			v[i] = f
		}
		cmd := wire.Command(v[0])
		if cmd == wire.QueryState {
			return run(ctx, c, w, []string{"status"})
		}
		rp, err := c.Command(cmd, int16(v[1]), float32(v[2]))
		if rp != nil {
			fmt.Fprintf(w, "reply %d ivalue %d fvalue %v\n", rp.Reply, rp.IValue, rp.FValue)
		}
		return err
	}
	return fmt.Errorf("unknown command %q", name)
}
