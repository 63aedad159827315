// Package config loads smsboxd configuration.
//
// Values come from, in increasing priority: built-in defaults, a YAML file,
// and SMSBOX_<SECTION>_<KEY> environment variables (for example
// SMSBOX_STORE_DSN or SMSBOX_HTTP_JWT_KEY). A .env file in the working
// directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SMSBOX_"

// Config is the daemon configuration.
type Config struct {
	Service Service `yaml:"service"`
	Store   Store   `yaml:"store"`
	Redis   Redis   `yaml:"redis"`
	HTTP    HTTP    `yaml:"http"`
	Log     Log     `yaml:"log"`
	Archive Archive `yaml:"archive"`
}

// Service tunes the message handling core.
type Service struct {
	Name            string        `yaml:"name" validate:"required"`
	RetentionCap    int           `yaml:"retention_cap" validate:"gte=1"`
	QueueSize       int           `yaml:"queue_size" validate:"gte=1"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=1s"`
	ConnectRetries  int           `yaml:"connect_retries" validate:"gte=0"`
	Telemetry       bool          `yaml:"telemetry"`
}

// Store selects the row store backend.
type Store struct {
	Driver string `yaml:"driver" validate:"oneof=memory sqlite postgres mysql mongo"`
	DSN    string `yaml:"dsn" validate:"required_unless=Driver memory"`
	// Database is the MongoDB database name.
	Database string `yaml:"database" validate:"required_if=Driver mongo"`
}

// Redis is optional. When Addr is set it backs the contact cache and, with
// Events, the event bus transport.
type Redis struct {
	Addr       string        `yaml:"addr" validate:"omitempty,hostname_port"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db" validate:"gte=0"`
	Events     bool          `yaml:"events"`
	ContactTTL time.Duration `yaml:"contact_ttl" validate:"gte=0"`
}

// HTTP configures the ops API.
type HTTP struct {
	Addr         string        `yaml:"addr" validate:"required"`
	JWTKey       string        `yaml:"jwt_key"`
	ReadTimeout  time.Duration `yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" validate:"gte=0"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
}

// Archive configures where recycled messages are copied before deletion.
type Archive struct {
	Backend string `yaml:"backend" validate:"oneof=none s3 gcs"`
	Bucket  string `yaml:"bucket" validate:"required_unless=Backend none"`
	Prefix  string `yaml:"prefix"`
	// S3 only.
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
	RoleARN   string `yaml:"role_arn"`
	// GCS only.
	CredentialsFile string `yaml:"credentials_file"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Service: Service{
			Name:            "smsbox",
			RetentionCap:    1000,
			QueueSize:       256,
			ShutdownTimeout: 30 * time.Second,
			ConnectRetries:  5,
		},
		Store: Store{Driver: "memory"},
		Redis: Redis{ContactTTL: 24 * time.Hour},
		HTTP: HTTP{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log:     Log{Level: "info"},
		Archive: Archive{Backend: "none", Prefix: "smsbox-archive"},
	}
}

// Load reads the configuration. path may be empty to use only defaults and
// the environment. envFiles are loaded into the environment first; without
// any, ".env" is loaded when present. Existing variables are never replaced.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = []string{".env"}
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// applyEnv overrides fields from SMSBOX_<SECTION>_<KEY>, where SECTION and
// KEY are the upper-cased yaml names.
func applyEnv(cfg *Config) error {
	root := reflect.ValueOf(cfg).Elem()
	for i := range root.NumField() {
		section := root.Type().Field(i)
		sv := root.Field(i)
		for j := range sv.NumField() {
			field := sv.Type().Field(j)
			name := EnvPrefix + envName(section) + "_" + envName(field)
			raw, ok := os.LookupEnv(name)
			if !ok {
				continue
			}
			if err := setField(sv.Field(j), raw); err != nil {
				return fmt.Errorf("env %s: %w", name, err)
			}
		}
	}
	return nil
}

func envName(f reflect.StructField) string {
	tag, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
	if tag == "" {
		tag = f.Name
	}
	return strings.ToUpper(tag)
}

func setField(v reflect.Value, raw string) error {
	raw = strings.TrimSpace(raw)
	if v.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		v.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		v.SetBool(b)
	default:
		return fmt.Errorf("unsupported kind %s", v.Kind())
	}
	return nil
}
