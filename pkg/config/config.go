package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the canonical daemon configuration, merged from the YAML config
// file and MODMAILD_* environment variables. Environment values win over the
// file; explicit command flags win over both (handled by the caller).
type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Discord struct {
		Token        string `yaml:"token"`
		StaffGuildID string `yaml:"staff_guild_id"`
		MainGuildID  string `yaml:"main_guild_id"`
		// CategoryID is the channel category thread channels are created under.
		CategoryID string `yaml:"category_id"`
	} `yaml:"discord"`
	API struct {
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"api"`
	Reconcile struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"reconcile"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Load reads the YAML config at path (if present) and applies environment
// overrides. A missing file is not an error; env-only deployments are valid.
func Load(path string) (Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(b, &c); err != nil {
				return c, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MODMAILD_ADDR"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("MODMAILD_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("MODMAILD_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("MODMAILD_DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("MODMAILD_STAFF_GUILD_ID"); v != "" {
		c.Discord.StaffGuildID = v
	}
	if v := os.Getenv("MODMAILD_MAIN_GUILD_ID"); v != "" {
		c.Discord.MainGuildID = v
	}
	if v := os.Getenv("MODMAILD_CATEGORY_ID"); v != "" {
		c.Discord.CategoryID = v
	}
	if v := os.Getenv("MODMAILD_RECONCILE_CRON"); v != "" {
		c.Reconcile.Enabled = true
		c.Reconcile.Cron = v
	}
	if v := os.Getenv("MODMAILD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ParseCommandFlags parses the daemon's command flags and reports which were
// explicitly set so the caller can let flags win over file and env values.
func ParseCommandFlags() (addr, db, cfg string, set map[string]bool) {
	addrFlag := flag.String("addr", "127.0.0.1:8080", "HTTP listen address")
	dbFlag := flag.String("db", "./data/modmail", "path to the pebble database")
	cfgFlag := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	set = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return *addrFlag, *dbFlag, *cfgFlag, set
}

// ResolveConfigPath picks the config file path: an explicit flag wins, then
// MODMAILD_CONFIG, then the conventional default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && flagVal != "" {
		return flagVal
	}
	if v := os.Getenv("MODMAILD_CONFIG"); v != "" {
		return v
	}
	return "modmaild.yaml"
}
