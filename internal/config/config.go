// Package config defines the command line surface shared by the keyper binary
// and tests.
package config

import (
	"github.com/Alia5/KEYPER/internal/cmd"
)

// LogConfig holds the logging flags shared by all commands.
type LogConfig struct {
	Level   string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"KEYPER_LOG_LEVEL"`
	File    string `help:"Also write logs to this file" env:"KEYPER_LOG_FILE"`
	RawFile string `help:"Write raw report traffic hex dumps to this file" env:"KEYPER_LOG_RAW_FILE"`
}

// CLI is the root command structure parsed by Kong.
type CLI struct {
	Log    LogConfig `embed:"" prefix:"log."`
	Config string    `help:"Path to a configuration file" env:"KEYPER_CONFIG"`

	Run       cmd.Run           `cmd:"" help:"Run the keyboard with the host link server"`
	Attach    cmd.Attach        `cmd:"" help:"Attach to a running keyboard as the host"`
	ConfigCmd cmd.ConfigCommand `cmd:"" name:"config" help:"Configuration file utilities"`
	Install   cmd.Install       `cmd:"" help:"Install KEYPER as a system service"`
	Uninstall cmd.Uninstall     `cmd:"" help:"Remove the KEYPER system service"`
}
