package robot

import (
	"encoding/json"
	"fmt"
)

// CommandType tags the wire form of a robot command.
type CommandType string

const (
	CmdNavigate    CommandType = "NAVIGATE"
	CmdCancel      CommandType = "CANCEL"
	CmdSetMode     CommandType = "SET_MODE"
	CmdDrive       CommandType = "DRIVE_COMMAND"
	CmdLED         CommandType = "LED"
	CmdAudioBeep   CommandType = "AUDIO_BEEP"
	CmdAudioVolume CommandType = "AUDIO_VOLUME"
)

// Command is a message on the robot command channel. The concrete types
// below are the full vocabulary the table understands; the manual-drive
// relay additionally restricts which of them users may send.
type Command interface {
	Type() CommandType
}

type Navigate struct {
	Start       string `json:"start"`
	Destination string `json:"destination"`
}

type Cancel struct{}

type SetMode struct {
	Mode string `json:"mode"`
}

type Drive struct {
	LinearVelocity  float64 `json:"linear_velocity"`
	AngularVelocity float64 `json:"angular_velocity"`
}

type LED struct {
	Enabled    bool  `json:"enabled"`
	R          uint8 `json:"r"`
	G          uint8 `json:"g"`
	B          uint8 `json:"b"`
	Brightness uint8 `json:"brightness"`
}

type AudioBeep struct {
	Hz uint32 `json:"hz"`
	Ms uint32 `json:"ms"`
}

type AudioVolume struct {
	Value float64 `json:"value"`
}

func (Navigate) Type() CommandType    { return CmdNavigate }
func (Cancel) Type() CommandType      { return CmdCancel }
func (SetMode) Type() CommandType     { return CmdSetMode }
func (Drive) Type() CommandType       { return CmdDrive }
func (LED) Type() CommandType         { return CmdLED }
func (AudioBeep) Type() CommandType   { return CmdAudioBeep }
func (AudioVolume) Type() CommandType { return CmdAudioVolume }

// commandEnvelope is the superset of all command fields plus the tag.
// Used for both encode and decode so the wire format stays in one place.
type commandEnvelope struct {
	Command CommandType `json:"command"`

	Start       string `json:"start,omitempty"`
	Destination string `json:"destination,omitempty"`

	Mode string `json:"mode,omitempty"`

	LinearVelocity  *float64 `json:"linear_velocity,omitempty"`
	AngularVelocity *float64 `json:"angular_velocity,omitempty"`

	Enabled    *bool `json:"enabled,omitempty"`
	R          uint8 `json:"r,omitempty"`
	G          uint8 `json:"g,omitempty"`
	B          uint8 `json:"b,omitempty"`
	Brightness uint8 `json:"brightness,omitempty"`

	Hz uint32 `json:"hz,omitempty"`
	Ms uint32 `json:"ms,omitempty"`

	Value *float64 `json:"value,omitempty"`
}

// EncodeCommand marshals a command as tagged JSON.
func EncodeCommand(c Command) ([]byte, error) {
	env := commandEnvelope{Command: c.Type()}
	switch v := c.(type) {
	case Navigate:
		env.Start = v.Start
		env.Destination = v.Destination
	case Cancel:
	case SetMode:
		env.Mode = v.Mode
	case Drive:
		env.LinearVelocity = &v.LinearVelocity
		env.AngularVelocity = &v.AngularVelocity
	case LED:
		env.Enabled = &v.Enabled
		env.R, env.G, env.B, env.Brightness = v.R, v.G, v.B, v.Brightness
	case AudioBeep:
		env.Hz, env.Ms = v.Hz, v.Ms
	case AudioVolume:
		env.Value = &v.Value
	default:
		return nil, fmt.Errorf("encode command: unknown type %T", c)
	}
	return json.Marshal(env)
}

// DecodeCommand parses tagged JSON into a command. Unknown tags are an error.
func DecodeCommand(data []byte) (Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}
	switch env.Command {
	case CmdNavigate:
		return Navigate{Start: env.Start, Destination: env.Destination}, nil
	case CmdCancel:
		return Cancel{}, nil
	case CmdSetMode:
		return SetMode{Mode: env.Mode}, nil
	case CmdDrive:
		d := Drive{}
		if env.LinearVelocity != nil {
			d.LinearVelocity = *env.LinearVelocity
		}
		if env.AngularVelocity != nil {
			d.AngularVelocity = *env.AngularVelocity
		}
		return d, nil
	case CmdLED:
		l := LED{R: env.R, G: env.G, B: env.B, Brightness: env.Brightness}
		if env.Enabled != nil {
			l.Enabled = *env.Enabled
		}
		return l, nil
	case CmdAudioBeep:
		return AudioBeep{Hz: env.Hz, Ms: env.Ms}, nil
	case CmdAudioVolume:
		a := AudioVolume{}
		if env.Value != nil {
			a.Value = *env.Value
		}
		return a, nil
	}
	return nil, fmt.Errorf("decode command: unknown command %q", env.Command)
}
