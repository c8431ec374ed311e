// Package platform works out where journeymap keeps its config file, database, inbox and
// backups on each operating system.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "journeymap"

// HomeEnv, when set, places every journeymap file under one directory regardless of platform.
const HomeEnv = "JOURNEYMAP_HOME"

// Paths are the files and directories one install reads and writes.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	InboxDir   string
	BackupDir  string
}

// Install selects which install the paths belong to. The zero value is the regular install.
type Install struct {
	// Name replaces "journeymap" in directory and database names.
	Name string
	// Dev appends "-dev" so development runs never touch a regular install's data.
	Dev bool
}

func (i Install) dirName() string {
	name := strings.TrimSpace(i.Name)
	if name == "" {
		name = appName
	}
	if i.Dev {
		name += "-dev"
	}
	return name
}

// Bases are the per-user directories an install nests under.
type Bases struct {
	Config string
	Data   string
}

// baseEnv names the variables that move the config and data bases on each GOOS.
var baseEnv = map[string]struct{ config, data string }{
	"linux":   {config: "XDG_CONFIG_HOME", data: "XDG_DATA_HOME"},
	"windows": {config: "APPDATA", data: "LOCALAPPDATA"},
}

// Current resolves paths for install on this machine.
func Current(install Install) (Paths, error) {
	bases, err := userBases(runtime.GOOS)
	if err != nil {
		return Paths{}, err
	}
	return Resolve(runtime.GOOS, os.Getenv, bases, install)
}

// userBases reads the OS defaults. Linux keeps data under ~/.local/share rather than ~/.config.
func userBases(goos string) (Bases, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return Bases{}, fmt.Errorf("user config dir: %w", err)
	}
	bases := Bases{Config: configDir, Data: configDir}
	if goos == "linux" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Bases{}, fmt.Errorf("user home dir: %w", err)
		}
		bases.Data = filepath.Join(home, ".local", "share")
	}
	return bases, nil
}

// Resolve lays out an install under bases, honouring HomeEnv and the GOOS base variables read
// through getenv.
func Resolve(goos string, getenv func(string) string, bases Bases, install Install) (Paths, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	name := install.dirName()

	if home := strings.TrimSpace(getenv(HomeEnv)); home != "" {
		root := filepath.Join(home, name)
		return layout(root, root, name), nil
	}

	if vars, ok := baseEnv[goos]; ok {
		if v := strings.TrimSpace(getenv(vars.config)); v != "" {
			bases.Config = v
		}
		if v := strings.TrimSpace(getenv(vars.data)); v != "" {
			bases.Data = v
		}
	}
	if bases.Config == "" || bases.Data == "" {
		return Paths{}, errors.New("config and data base dirs are required")
	}
	return layout(filepath.Join(bases.Config, name), filepath.Join(bases.Data, name), name), nil
}

func layout(configDir, dataDir, name string) Paths {
	return Paths{
		ConfigPath: filepath.Join(configDir, "config.toml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, name+".db"),
		InboxDir:   filepath.Join(dataDir, "inbox"),
		BackupDir:  filepath.Join(dataDir, "backups"),
	}
}
