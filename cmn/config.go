package cmn

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration for the namespace, block-checksum
// and scheduling layers. It is loaded from a JSON file and then overlaid
// with EOS_* environment variables (via a .env file in development, the way
// ClusterCockpit-cc-backend loads its local overrides with godotenv) so that
// operators can tweak a single knob without editing the config file.
type Config struct {
	ChangeLogDir    string        `json:"changelog_dir"`
	BlockSize       int64         `json:"block_size"`
	ChecksumKind    string        `json:"checksum_kind"`
	FollowPollEvery time.Duration `json:"follow_poll"`

	DrainBatchSize  int           `json:"drain_batch_size"`
	DrainMaxInFlght int           `json:"drain_max_inflight"`
	DrainMaxRetries int           `json:"drain_max_retries"`
	DrainBackoff    time.Duration `json:"drain_backoff"`

	GeoSpreadCap float64 `json:"geo_spread_cap"`
}

func DefaultConfig() *Config {
	return &Config{
		ChangeLogDir:    "./data/changelog",
		BlockSize:       4 << 20, // 4 MiB
		ChecksumKind:    "crc32c",
		FollowPollEvery: 100 * time.Millisecond,
		DrainBatchSize:  1000,
		DrainMaxInFlght: 100,
		DrainMaxRetries: 5,
		DrainBackoff:    30 * time.Second,
		GeoSpreadCap:    0.90,
	}
}

// LoadConfig reads a JSON config file at path, then applies any EOS_*
// environment overrides (loading envPath with godotenv first, if present
// and non-empty, ignoring a missing file).
func LoadConfig(path, envPath string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, NewInvalidError("opening config %q: %v", path, err)
		}
		defer f.Close()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, NewInvalidError("parsing config %q: %v", path, err)
		}
	}
	if envPath != "" {
		_ = godotenv.Load(envPath) // dev convenience; absence is not an error
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("EOS_CHANGELOG_DIR"); v != "" {
		c.ChangeLogDir = v
	}
	if v := os.Getenv("EOS_BLOCK_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.BlockSize = n
		}
	}
	if v := os.Getenv("EOS_CHECKSUM_KIND"); v != "" {
		c.ChecksumKind = v
	}
}

func (c *Config) validate() error {
	if c.ChangeLogDir == "" {
		return NewInvalidError("changelog_dir must not be empty")
	}
	if c.BlockSize <= 0 {
		return NewInvalidError("block_size must be positive, got %d", c.BlockSize)
	}
	if !ValidChecksumKind(c.ChecksumKind) {
		return NewInvalidError("unknown checksum kind %q", c.ChecksumKind)
	}
	return nil
}

// ValidChecksumKind reports whether kind is one of the identifiers listed
// in spec §6. Kept in cmn (rather than the checksum package) so that config
// validation does not need to import the checksum registry.
func ValidChecksumKind(kind string) bool {
	switch kind {
	case "adler", "crc32", "crc32c", "crc64", "md5", "sha1", "sha256", "blake3", "xxhash64":
		return true
	default:
		return false
	}
}
