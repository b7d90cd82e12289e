package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

type Config struct {
	LogLevel      string `koanf:"log_level"`
	Threads       int    `koanf:"threads"`
	ShowTime      bool   `koanf:"showtime"`
	InputList     string `koanf:"input"`
	Output        string `koanf:"output"`
	Strict        bool   `koanf:"strict"`
	DefaultFormat string `koanf:"default_format"`
	EmbedCover    bool   `koanf:"embed_cover"`
	KeepCover     bool   `koanf:"keep_cover"`

	version bool
}

// loadConfig layers the configuration: built-in defaults, then the YAML
// config file (if present), then command line flags.
func loadConfig(args []string) (*Config, error) {
	f := pflag.NewFlagSet("ncmpp", pflag.ContinueOnError)
	f.String("config", "config.yml", "path to the YAML configuration file")
	f.String("log_level", "", "log level: trace, debug, info, warn, error")
	f.UintP("threads", "t", 0, "max count of unlock workers")
	f.BoolP("showtime", "s", false, "show how long it took to unlock everything")
	f.StringP("input", "i", "", "path to a text file listing input .ncm files")
	f.StringP("output", "o", "", "path to a text file listing output bases, or a directory for fallback mode")
	f.Bool("strict", false, "reject files without the NCM magic header")
	f.String("default_format", "", "audio extension to assume when a container has no metadata")
	f.Bool("embed_cover", false, "embed metadata and cover art into decoded files")
	f.Bool("keep_cover", false, "keep the extracted .jpg after embedding it")
	f.BoolP("version", "v", false, "print version and exit")
	if err := f.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"log_level": "info",
		"threads":   runtime.NumCPU(),
		"output":    "unlocked",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed loading default configuration: %w", err)
	}

	cfgPath, _ := f.GetString("config")
	if _, err := os.Stat(cfgPath); err == nil {
		if err := k.Load(file.Provider(cfgPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed loading configuration file: %w", err)
		}
	}

	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed loading command line configuration: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed unmarshalling configuration: %w", err)
	}

	cfg.version, _ = f.GetBool("version")
	return &cfg, nil
}
