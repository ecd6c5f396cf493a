package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/facegate/internal/constants"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	DeviceID    string
	Database    DatabaseConfig
	Camera      CameraConfig
	Recognition RecognitionConfig
	Door        DoorConfig
	Serial      SerialConfig
	MQTT        MQTTConfig
	Web         WebConfig
	Log         LogConfig
}

type DatabaseConfig struct {
	Driver       string // "mysql" (default, MariaDB face_images table) or "postgres"
	URL          string // DSN, e.g. root:secret@tcp(127.0.0.1:3306)/enroll_recognize?parseTime=true
	MaxOpenConns int    // Maximum open connections (default 5)
	MaxIdleConns int    // Maximum idle connections (default 2)
}

type CameraConfig struct {
	StreamURLs        []string // remote candidates tried before local devices
	Indexes           []int    // local device indexes
	CascadePath       string   // explicit Haar cascade file (optional)
	CascadeCandidates []string // system-wide cascade locations
	EmptyFrameLimit   int
	TickInterval      time.Duration
}

type RecognitionConfig struct {
	Matcher   string  // "lbph" or "nearest"
	Threshold float64 // maximum accepted score, lower = more similar
	FaceSize  int
}

type DoorConfig struct {
	OpenConfirmFrames int
	CloseGrace        time.Duration
}

type SerialConfig struct {
	Port           string // preferred port; empty = discovery
	Baud           int
	FixedPort      string // pre-bound path checked first during discovery
	FallbackPort   string // last resort at startup
	ReconnectDelay time.Duration
	WriteWait      time.Duration
	Signatures     PortSignatures
}

// PortSignatures are the substrings port discovery matches on.
type PortSignatures struct {
	BluetoothPaths         []string `yaml:"path"`
	BluetoothProducts      []string `yaml:"product"`
	BluetoothManufacturers []string `yaml:"manufacturer"`
	USBPaths               []string `yaml:"-"`
}

type MQTTConfig struct {
	Broker      string // empty disables publishing
	TopicPrefix string
	Username    string
	Password    string
}

// Enabled reports whether an MQTT broker is configured.
func (c *MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

type WebConfig struct {
	Host           string
	Port           int
	APIToken       string   // bearer token required by mutating endpoints when set
	AllowedOrigins []string // CORS origins besides localhost
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
	File   string // optional rotated log file
}

// Defaults mirrors defaults.yaml.
type Defaults struct {
	Recognition struct {
		Matcher    string             `yaml:"matcher"`
		Thresholds map[string]float64 `yaml:"thresholds"`
		FaceSize   int                `yaml:"face_size"`
	} `yaml:"recognition"`
	Door struct {
		OpenConfirmFrames int `yaml:"open_confirm_frames"`
		CloseGraceMs      int `yaml:"close_grace_ms"`
	} `yaml:"door"`
	Camera struct {
		Indexes           []int    `yaml:"indexes"`
		EmptyFrameLimit   int      `yaml:"empty_frame_limit"`
		TickMs            int      `yaml:"tick_ms"`
		CascadeCandidates []string `yaml:"cascade_candidates"`
	} `yaml:"camera"`
	Serial struct {
		Baud             int            `yaml:"baud"`
		FixedPort        string         `yaml:"fixed_port"`
		FallbackPort     string         `yaml:"fallback_port"`
		ReconnectDelayMs int            `yaml:"reconnect_delay_ms"`
		WriteWaitMs      int            `yaml:"write_wait_ms"`
		Bluetooth        PortSignatures `yaml:"bluetooth"`
		USBPaths         []string       `yaml:"usb_paths"`
	} `yaml:"serial"`
}

// LoadDefaults parses the embedded defaults.yaml.
func LoadDefaults() (*Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}
	return &d, nil
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits an environment variable on sep, dropping empty items.
func envList(key, sep string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// envInts parses a comma-separated list of non-negative integers.
func envInts(key string, defaultVal []int) []int {
	items := envList(key, ",")
	if len(items) == 0 {
		return defaultVal
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(item)
		if err != nil || n < 0 {
			return defaultVal
		}
		out = append(out, n)
	}
	return out
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func Load() *Config {
	d, err := LoadDefaults()
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic(err.Error())
	}

	matcher := strings.ToLower(envString("MATCHER", d.Recognition.Matcher))

	signatures := d.Serial.Bluetooth
	signatures.USBPaths = d.Serial.USBPaths

	return &Config{
		DeviceID: envString("DEVICE_ID", constants.DefaultDeviceID),
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DATABASE_DRIVER", "mysql")),
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 5),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Camera: CameraConfig{
			StreamURLs:        envList("STREAM_URLS", ";"),
			Indexes:           envInts("CAMERA_INDEXES", d.Camera.Indexes),
			CascadePath:       os.Getenv("CASCADE_PATH"),
			CascadeCandidates: d.Camera.CascadeCandidates,
			EmptyFrameLimit:   envInt("CAMERA_EMPTY_FRAME_LIMIT", d.Camera.EmptyFrameLimit),
			TickInterval:      millis(envInt("TICK_MS", d.Camera.TickMs)),
		},
		Recognition: RecognitionConfig{
			Matcher:   matcher,
			Threshold: envFloat("MATCH_THRESHOLD", d.Recognition.Thresholds[matcher]),
			FaceSize:  d.Recognition.FaceSize,
		},
		Door: DoorConfig{
			OpenConfirmFrames: envInt("OPEN_CONFIRM_FRAMES", d.Door.OpenConfirmFrames),
			CloseGrace:        millis(envInt("CLOSE_GRACE_MS", d.Door.CloseGraceMs)),
		},
		Serial: SerialConfig{
			Port:           envString("SERIAL_PORT", d.Serial.FixedPort),
			Baud:           envInt("SERIAL_BAUD", d.Serial.Baud),
			FixedPort:      envString("SERIAL_FIXED_PORT", d.Serial.FixedPort),
			FallbackPort:   envString("SERIAL_FALLBACK_PORT", d.Serial.FallbackPort),
			ReconnectDelay: millis(d.Serial.ReconnectDelayMs),
			WriteWait:      millis(d.Serial.WriteWaitMs),
			Signatures:     signatures,
		},
		MQTT: MQTTConfig{
			Broker:      os.Getenv("MQTT_BROKER"),
			TopicPrefix: envString("MQTT_TOPIC_PREFIX", "facegate"),
			Username:    os.Getenv("MQTT_USERNAME"),
			Password:    os.Getenv("MQTT_PASSWORD"),
		},
		Web: WebConfig{
			Host:     envString("WEB_HOST", constants.DefaultWebHost),
			Port:     envInt("WEB_PORT", constants.DefaultWebPort),
			APIToken: os.Getenv("WEB_API_TOKEN"),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", ","),
		},
		Log: LogConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "text")),
			File:   os.Getenv("LOG_FILE"),
		},
	}
}

// Validate reports tuning values the controller cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Recognition.Matcher {
	case "lbph", "nearest":
	default:
		errs = append(errs, fmt.Errorf("unknown matcher %q (want lbph or nearest)", c.Recognition.Matcher))
	}
	if c.Recognition.Threshold <= 0 {
		errs = append(errs, errors.New("match threshold must be positive"))
	}
	if c.Door.OpenConfirmFrames <= 0 {
		errs = append(errs, errors.New("OPEN_CONFIRM_FRAMES must be positive"))
	}
	if c.Door.CloseGrace <= 0 {
		errs = append(errs, errors.New("CLOSE_GRACE_MS must be positive"))
	}
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}
