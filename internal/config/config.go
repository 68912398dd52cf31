package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Audio wire format shared with the phone app. Changing any of these breaks
// compatibility with producers already in the field.
const (
	DefaultRelayPort  = 28282
	DefaultSampleRate = 48000
	DefaultChannels   = 1
	DefaultBlockSize  = 2048
)

// DefaultPackageID is the phone-side application package.
const DefaultPackageID = "com.micmic.mobilemic"

type Config struct {
	OutputLabel    string   `mapstructure:"output_label"`
	CaptureLabel   string   `mapstructure:"capture_label"`
	AutoSetDefault bool     `mapstructure:"auto_set_default"`
	OutputHints    []string `mapstructure:"output_hints"`
	CaptureHints   []string `mapstructure:"capture_hints"`
	RelayPort      int      `mapstructure:"relay_port"`
	SampleRate     int      `mapstructure:"sample_rate"`
	Channels       int      `mapstructure:"channels"`
	BlockSize      int      `mapstructure:"block_size"`
	AdbPath        string   `mapstructure:"adb_path"`
	PackageID      string   `mapstructure:"package_id"`
	ApkPath        string   `mapstructure:"apk_path"`
	StatusFeedPort int      `mapstructure:"status_feed_port"`
	LogFormat      string   `mapstructure:"log_format"`
	LogLevel       string   `mapstructure:"log_level"`
}

func Default() *Config {
	return &Config{
		AutoSetDefault: true,
		OutputHints: []string{
			"Virtual Speakers for AudioRelay",
			"CABLE Input",
			"VB-Audio",
		},
		CaptureHints: []string{
			"Virtual Mic for AudioRelay",
			"CABLE Output",
			"VB-Audio",
			"WO Mic",
		},
		RelayPort:  DefaultRelayPort,
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BlockSize:  DefaultBlockSize,
		PackageID:  DefaultPackageID,
		LogFormat:  "text",
		LogLevel:   "info",
	}
}

func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("micmic")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MICMIC")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("output_label", cfg.OutputLabel)
	viper.Set("capture_label", cfg.CaptureLabel)
	viper.Set("auto_set_default", cfg.AutoSetDefault)
	viper.Set("output_hints", cfg.OutputHints)
	viper.Set("capture_hints", cfg.CaptureHints)
	viper.Set("relay_port", cfg.RelayPort)
	viper.Set("sample_rate", cfg.SampleRate)
	viper.Set("channels", cfg.Channels)
	viper.Set("block_size", cfg.BlockSize)
	viper.Set("adb_path", cfg.AdbPath)
	viper.Set("package_id", cfg.PackageID)
	viper.Set("apk_path", cfg.ApkPath)
	viper.Set("status_feed_port", cfg.StatusFeedPort)
	viper.Set("log_format", cfg.LogFormat)
	viper.Set("log_level", cfg.LogLevel)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "micmic.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	return viper.WriteConfigAs(cfgPath)
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "MicMic")
	case "darwin":
		return "/Library/Application Support/MicMic"
	default:
		return "/etc/micmic"
	}
}
