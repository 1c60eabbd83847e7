// Package config reads the configuration of the lambda server and CLI from
// a TOML file. Every field has a default, so an empty file, or no file at
// all, gives a working configuration reading from a Oneclient mounted at
// /mnt/onedata.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config holds every setting.
type Config struct {
	Port      string
	PProfPort string

	// Tokens is a file of API keys for the server. Empty means no
	// authentication.
	Tokens string

	// MountPoint is where the Oneclient is mounted.
	MountPoint string
	// Mmap maps archives into memory instead of reading them.
	Mmap bool
	// RemoteReads reads file content through the Oneprovider REST API
	// when a batch context has an access token.
	RemoteReads bool

	Workers           int
	ChunkSize         int
	MonitorTick       Duration
	HeartbeatInterval Duration
	PadAdler32        bool
	StrictValidation  bool
	ReadRate          float64 // bytes per second per batch, 0 is unlimited

	SentryDSN string

	// LedgerDB is "" for no ledger, "memory" for one kept in memory, or
	// the path of a QL database file. LedgerMySQL, if set, is used instead.
	LedgerDB    string
	LedgerMySQL string

	// S3, if a bucket is given, replaces the mounted Oneclient as the
	// place files are read from and unpacked into.
	S3 S3Config
}

// S3Config locates a bucket on S3 or an S3 compatible gateway.
type S3Config struct {
	Bucket   string
	Prefix   string
	Endpoint string // empty means AWS
	Region   string
}

// Duration is a time.Duration written in a config file as a string such as
// "150s".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// Default returns the configuration used for anything a file does not set.
func Default() *Config {
	return &Config{
		Port:              "8080",
		MountPoint:        "/mnt/onedata",
		ChunkSize:         10 * 1024 * 1024,
		MonitorTick:       Duration{time.Second},
		HeartbeatInterval: Duration{150 * time.Second},
		S3:                S3Config{Region: "us-east-1"},
	}
}

// Load reads the configuration file fname. An empty name gives the defaults.
func Load(fname string) (*Config, error) {
	c := Default()
	if fname == "" {
		return c, nil
	}
	md, err := toml.DecodeFile(fname, c)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", fname)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("reading config %s: unknown keys %v", fname, undecoded)
	}
	return c, c.check()
}

// Parse reads a configuration from a string.
func Parse(data string) (*Config, error) {
	c := Default()
	md, err := toml.Decode(data, c)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("reading config: unknown keys %v", undecoded)
	}
	return c, c.check()
}

func (c *Config) check() error {
	switch {
	case c.Workers < 0:
		return errors.New("Workers cannot be negative")
	case c.ChunkSize < 0:
		return errors.New("ChunkSize cannot be negative")
	case c.ReadRate < 0:
		return errors.New("ReadRate cannot be negative")
	case c.MonitorTick.Duration < 0 || c.HeartbeatInterval.Duration < 0:
		return errors.New("durations cannot be negative")
	}
	return nil
}
