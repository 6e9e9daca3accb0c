package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPassphrase = "default-passphrase-please-change"
	defaultSalt       = "default-salt-please-change"
)

type Config struct {
	Port                 string
	Env                  string
	AllowedOrigins       []string
	UploadDir            string
	MaxUploadBytes       int64
	SessionIDLength      int
	SessionTimeout       time.Duration
	SweepInterval        time.Duration
	EmptyGrace           time.Duration
	DisconnectGrace      time.Duration
	HeartbeatInterval    time.Duration
	HeartbeatTimeoutMult int
	EncryptionPassphrase string
	EncryptionSalt       string
}

// fileConfig 映射可选的 YAML 配置文件，环境变量优先。
type fileConfig struct {
	Port                 string   `yaml:"port"`
	Env                  string   `yaml:"env"`
	AllowedOrigins       []string `yaml:"allowed_origins"`
	UploadDir            string   `yaml:"upload_dir"`
	MaxUploadSizeGiB     float64  `yaml:"max_upload_size_gib"`
	SessionIDLength      int      `yaml:"session_id_length"`
	SessionTimeoutSec    int      `yaml:"session_timeout_seconds"`
	SweepIntervalSec     int      `yaml:"sweep_interval_seconds"`
	EmptyGraceSec        int      `yaml:"empty_grace_seconds"`
	DisconnectGraceSec   int      `yaml:"disconnect_grace_seconds"`
	HeartbeatIntervalSec int      `yaml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutMult int      `yaml:"heartbeat_timeout_mult"`
	EncryptionPassphrase string   `yaml:"encryption_passphrase"`
	EncryptionSalt       string   `yaml:"encryption_salt"`
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getenvFloat(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func defaults() Config {
	return Config{
		Port:                 "8123",
		Env:                  "dev",
		AllowedOrigins:       []string{"*"},
		UploadDir:            "uploads",
		MaxUploadBytes:       1 << 30, // 1 GiB
		SessionIDLength:      6,
		SessionTimeout:       time.Hour,
		SweepInterval:        60 * time.Second,
		EmptyGrace:           5 * time.Minute,
		DisconnectGrace:      10 * time.Second,
		HeartbeatInterval:    25 * time.Second,
		HeartbeatTimeoutMult: 2,
		EncryptionPassphrase: defaultPassphrase,
		EncryptionSalt:       defaultSalt,
	}
}

// Load 先套用默认值，再读取可选的 YAML 文件（CONFIG_FILE 指定），
// 最后用环境变量覆盖。
func Load() Config {
	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		applyFile(&cfg, path)
	}
	applyEnv(&cfg)
	return cfg
}

func applyFile(cfg *Config, path string) {
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return
	}
	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if fc.Env != "" {
		cfg.Env = fc.Env
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.UploadDir != "" {
		cfg.UploadDir = fc.UploadDir
	}
	if fc.MaxUploadSizeGiB > 0 {
		cfg.MaxUploadBytes = int64(fc.MaxUploadSizeGiB * float64(1<<30))
	}
	if fc.SessionIDLength > 0 {
		cfg.SessionIDLength = fc.SessionIDLength
	}
	if fc.SessionTimeoutSec > 0 {
		cfg.SessionTimeout = time.Duration(fc.SessionTimeoutSec) * time.Second
	}
	if fc.SweepIntervalSec > 0 {
		cfg.SweepInterval = time.Duration(fc.SweepIntervalSec) * time.Second
	}
	if fc.EmptyGraceSec > 0 {
		cfg.EmptyGrace = time.Duration(fc.EmptyGraceSec) * time.Second
	}
	if fc.DisconnectGraceSec > 0 {
		cfg.DisconnectGrace = time.Duration(fc.DisconnectGraceSec) * time.Second
	}
	if fc.HeartbeatIntervalSec > 0 {
		cfg.HeartbeatInterval = time.Duration(fc.HeartbeatIntervalSec) * time.Second
	}
	if fc.HeartbeatTimeoutMult > 0 {
		cfg.HeartbeatTimeoutMult = fc.HeartbeatTimeoutMult
	}
	if fc.EncryptionPassphrase != "" {
		cfg.EncryptionPassphrase = fc.EncryptionPassphrase
	}
	if fc.EncryptionSalt != "" {
		cfg.EncryptionSalt = fc.EncryptionSalt
	}
}

func applyEnv(cfg *Config) {
	cfg.Port = getenv("APP_PORT", cfg.Port)
	cfg.Env = getenv("APP_ENV", cfg.Env)
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		origins := make([]string, 0, 4)
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		if len(origins) > 0 {
			cfg.AllowedOrigins = origins
		}
	}
	cfg.UploadDir = getenv("UPLOAD_DIR", cfg.UploadDir)
	if gib := getenvFloat("MAX_UPLOAD_SIZE_GIB", 0); gib > 0 {
		cfg.MaxUploadBytes = int64(gib * float64(1<<30))
	}
	cfg.SessionIDLength = getenvInt("SESSION_ID_LENGTH", cfg.SessionIDLength)
	if v := getenvInt("SESSION_TIMEOUT_SECONDS", 0); v > 0 {
		cfg.SessionTimeout = time.Duration(v) * time.Second
	}
	if v := getenvInt("SWEEP_INTERVAL_SECONDS", 0); v > 0 {
		cfg.SweepInterval = time.Duration(v) * time.Second
	}
	if v := getenvInt("EMPTY_GRACE_SECONDS", 0); v > 0 {
		cfg.EmptyGrace = time.Duration(v) * time.Second
	}
	if v := getenvInt("DISCONNECT_GRACE_SECONDS", 0); v > 0 {
		cfg.DisconnectGrace = time.Duration(v) * time.Second
	}
	if v := getenvInt("HEARTBEAT_INTERVAL_SECONDS", 0); v > 0 {
		cfg.HeartbeatInterval = time.Duration(v) * time.Second
	}
	cfg.HeartbeatTimeoutMult = getenvInt("HEARTBEAT_TIMEOUT_MULT", cfg.HeartbeatTimeoutMult)
	cfg.EncryptionPassphrase = getenv("ENCRYPTION_PASSPHRASE", cfg.EncryptionPassphrase)
	cfg.EncryptionSalt = getenv("ENCRYPTION_SALT", cfg.EncryptionSalt)
}

// Validate 检查配置是否可用于启动；非 dev 环境拒绝默认加密参数。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("port must not be empty")
	}
	if cfg.UploadDir == "" {
		return errors.New("upload dir must not be empty")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("max upload size must be positive")
	}
	if cfg.SessionIDLength < 4 {
		return errors.New("session id length must be at least 4")
	}
	if cfg.HeartbeatTimeoutMult < 2 {
		return errors.New("heartbeat timeout multiplier must be at least 2")
	}
	if cfg.Env != "dev" && (cfg.EncryptionPassphrase == defaultPassphrase || cfg.EncryptionSalt == defaultSalt) {
		return errors.New("default encryption parameters are not allowed outside dev")
	}
	return nil
}
