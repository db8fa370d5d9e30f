// Package config is the one canonical configuration path for a pipeline
// run. The Config struct is built in main from flags, overlaid from the
// environment, and passed into each stage; no package re-derives paths or
// connection details on its own.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries everything the pipeline stages need.
type Config struct {
	Host     string // ClickHouse IP
	User     string
	Password string

	RawDir string // folder holding the downloaded zip archives

	BronzeDb string // database of raw all-string tables, one per archive
	SilverDb string // database of typed, harmonized, partitioned tables
	MatchDb  string // database of crosswalk and matched-loan tables

	MinYear int
	MaxYear int

	NConcur int  // archives processed in parallel
	KeepRaw bool // keep the extracted text file after a successful load

	BoundsFile string // optional YAML override of the plausibility bounds

	MaxMemory  int64 // ClickHouse max_memory_usage
	MaxGroupBy int64 // ClickHouse max_bytes_before_external_group_by
}

// New returns a Config with working defaults for everything but the
// connection password and the raw folder.
func New() *Config {
	return &Config{
		Host:       "127.0.0.1",
		User:       "default",
		BronzeDb:   "hmda_bronze",
		SilverDb:   "hmda_silver",
		MatchDb:    "hmda_match",
		MinYear:    2018,
		MaxYear:    2023,
		NConcur:    2,
		MaxMemory:  40000000000,
		MaxGroupBy: 20000000000,
	}
}

// Env overlays values from the environment, reading a .env file first
// when one is present. Keys not set in the environment leave the current
// value alone, so flags and .env compose.
func (c *Config) Env() {
	// a missing .env file is fine
	_ = godotenv.Load()

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("HMDA_HOST", &c.Host)
	str("HMDA_USER", &c.User)
	str("HMDA_PASSWORD", &c.Password)
	str("HMDA_RAW_DIR", &c.RawDir)
	str("HMDA_BOUNDS", &c.BoundsFile)

	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, e := strconv.Atoi(v); e == nil {
				*dst = n
			}
		}
	}
	num("HMDA_MIN_YEAR", &c.MinYear)
	num("HMDA_MAX_YEAR", &c.MaxYear)
	num("HMDA_CONCUR", &c.NConcur)
}

// Validate checks the fields every stage relies on.
func (c *Config) Validate() error {
	if c.MinYear > c.MaxYear {
		return fmt.Errorf("year range %d-%d is backwards", c.MinYear, c.MaxYear)
	}
	if c.NConcur < 1 {
		return fmt.Errorf("concurrency %d must be at least 1", c.NConcur)
	}
	if c.BronzeDb == "" || c.SilverDb == "" || c.MatchDb == "" {
		return fmt.Errorf("database names may not be empty")
	}
	return nil
}
