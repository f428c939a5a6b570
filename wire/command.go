package wire

import "fmt"

// Command is the request code carried in RequestPacket.Command.
type Command int16

// Derotator control.
const (
	Start        Command = 10
	Stop         Command = 11
	GotoHallHome Command = 12
	GotoUserHome Command = 13
)

// Setup.
const (
	SetUserHome  Command = 20
	SetMaxCW     Command = 21
	SetMaxCCW    Command = 22
	EnableLimits Command = 23
	SetClockwise Command = 24
	SaveSettings Command = 25
	LoadSettings Command = 26
	LoadDefaults Command = 27
)

// Queries and other commands.
const (
	GetAltAzZeta    Command = 100
	GetTheta        Command = 101
	GotoTheta       Command = 102
	QueryState      Command = 103
	GetUserHome     Command = 104
	GetMaxCW        Command = 105
	GetMaxCCW       Command = 106
	SetWLANSSID     Command = 107
	SetWLANPassword Command = 108
	SetWLANSecurity Command = 109
	SetEarthOmega   Command = 110
)

// Band groups command codes by purpose.
type Band int

const (
	BandNone Band = iota
	BandControl
	BandSetup
	BandQuery
)

func (c Command) Band() Band {
	switch {
	case c >= 10 && c < 20:
		return BandControl
	case c >= 20 && c < 30:
		return BandSetup
	case c >= 100:
		return BandQuery
	}
	return BandNone
}

var commandNames = map[Command]string{
	Start:           "start",
	Stop:            "stop",
	GotoHallHome:    "goto-hall-home",
	GotoUserHome:    "goto-user-home",
	SetUserHome:     "set-user-home",
	SetMaxCW:        "set-max-cw",
	SetMaxCCW:       "set-max-ccw",
	EnableLimits:    "enable-limits",
	SetClockwise:    "set-clockwise",
	SaveSettings:    "save-settings",
	LoadSettings:    "load-settings",
	LoadDefaults:    "load-defaults",
	GetAltAzZeta:    "get-altaz-zeta",
	GetTheta:        "get-theta",
	GotoTheta:       "goto-theta",
	QueryState:      "query-state",
	GetUserHome:     "get-user-home",
	GetMaxCW:        "get-max-cw",
	GetMaxCCW:       "get-max-ccw",
	SetWLANSSID:     "set-wlan-ssid",
	SetWLANPassword: "set-wlan-password",
	SetWLANSecurity: "set-wlan-security",
	SetEarthOmega:   "set-earth-omega",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int16(c))
}

// ParseCommand looks up a command by the name String returns.
func ParseCommand(name string) (Command, bool) {
	for c, n := range commandNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// ReplySize returns the number of bytes sent back for c.
func (c Command) ReplySize() int {
	if c == QueryState {
		return StatusSize
	}
	return ReplySize
}
