package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultModelURL points at the MNIST classifier from the ONNX model zoo.
const DefaultModelURL = "https://github.com/onnx/models/raw/main/validated/vision/classification/mnist/model/mnist-8.onnx"

type Settings struct {
	Port      int
	LogLevel  string
	LogFormat string

	ModelURL       string
	ModelBackend   string
	MetadataPath   string
	OnnxRuntimeLib string
	FetchTimeout   time.Duration
	CachePath      string

	CanvasWidth  int
	CanvasHeight int
	BrushWidth   float64
	TopK         int
}

type ConfigFile struct {
	Server struct {
		Port      int    `yaml:"port"`
		LogLevel  string `yaml:"logLevel"`
		LogFormat string `yaml:"logFormat"`
	} `yaml:"server"`

	Model struct {
		URL            string `yaml:"url"`
		Backend        string `yaml:"backend"`
		MetadataPath   string `yaml:"metadataPath"`
		OnnxRuntimeLib string `yaml:"onnxRuntimeLib"`
		FetchTimeout   string `yaml:"fetchTimeout"`
		CachePath      string `yaml:"cachePath"`
	} `yaml:"model"`

	Canvas struct {
		Width      int     `yaml:"width"`
		Height     int     `yaml:"height"`
		BrushWidth float64 `yaml:"brushWidth"`
	} `yaml:"canvas"`

	Results struct {
		TopK int `yaml:"topK"`
	} `yaml:"results"`
}

func defaults() Settings {
	return Settings{
		Port:         8080,
		LogLevel:     "info",
		LogFormat:    "console",
		ModelURL:     DefaultModelURL,
		ModelBackend: "onnxruntime",
		FetchTimeout: 60 * time.Second,
		CanvasWidth:  280,
		CanvasHeight: 280,
		BrushWidth:   15,
		TopK:         5,
	}
}

// Load builds Settings from defaults, an optional YAML file named by
// CONFIG_FILE and environment overrides. A .env file in the working
// directory is read first when present.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to read .env: %w", err)
	}

	settings := defaults()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		if err := applyYAML(&settings, configPath); err != nil {
			return Settings{}, err
		}
	}

	applyEnv(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func applyYAML(settings *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Server.Port != 0 {
		settings.Port = config.Server.Port
	}
	settings.LogLevel = orDefault(config.Server.LogLevel, settings.LogLevel)
	settings.LogFormat = orDefault(config.Server.LogFormat, settings.LogFormat)

	settings.ModelURL = orDefault(config.Model.URL, settings.ModelURL)
	settings.ModelBackend = orDefault(config.Model.Backend, settings.ModelBackend)
	settings.MetadataPath = orDefault(config.Model.MetadataPath, settings.MetadataPath)
	settings.OnnxRuntimeLib = orDefault(config.Model.OnnxRuntimeLib, settings.OnnxRuntimeLib)
	settings.CachePath = orDefault(config.Model.CachePath, settings.CachePath)
	if config.Model.FetchTimeout != "" {
		d, err := time.ParseDuration(config.Model.FetchTimeout)
		if err != nil {
			return fmt.Errorf("invalid model.fetchTimeout %q: %w", config.Model.FetchTimeout, err)
		}
		settings.FetchTimeout = d
	}

	if config.Canvas.Width != 0 {
		settings.CanvasWidth = config.Canvas.Width
	}
	if config.Canvas.Height != 0 {
		settings.CanvasHeight = config.Canvas.Height
	}
	if config.Canvas.BrushWidth != 0 {
		settings.BrushWidth = config.Canvas.BrushWidth
	}
	if config.Results.TopK != 0 {
		settings.TopK = config.Results.TopK
	}

	return nil
}

func applyEnv(s *Settings) {
	s.Port = getIntOrDefault("PORT", s.Port)
	s.LogLevel = getEnvOrDefault("LOG_LEVEL", s.LogLevel)
	s.LogFormat = getEnvOrDefault("LOG_FORMAT", s.LogFormat)

	s.ModelURL = getEnvOrDefault("MODEL_URL", s.ModelURL)
	s.ModelBackend = getEnvOrDefault("MODEL_BACKEND", s.ModelBackend)
	s.MetadataPath = getEnvOrDefault("MODEL_METADATA", s.MetadataPath)
	s.OnnxRuntimeLib = getEnvOrDefault("ONNXRUNTIME_LIB", s.OnnxRuntimeLib)
	s.FetchTimeout = getDurationOrDefault("MODEL_FETCH_TIMEOUT", s.FetchTimeout)
	s.CachePath = getEnvOrDefault("MODEL_CACHE_PATH", s.CachePath)

	s.CanvasWidth = getIntOrDefault("CANVAS_WIDTH", s.CanvasWidth)
	s.CanvasHeight = getIntOrDefault("CANVAS_HEIGHT", s.CanvasHeight)
	s.BrushWidth = getFloatOrDefault("BRUSH_WIDTH", s.BrushWidth)
	s.TopK = getIntOrDefault("TOP_K", s.TopK)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// validateSettings rejects values the server cannot run with.
func validateSettings(settings *Settings) error {
	if settings.Port < 1 || settings.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", settings.Port)
	}

	switch strings.ToLower(settings.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", settings.LogFormat)
	}

	if settings.ModelURL == "" {
		return fmt.Errorf("model URL cannot be empty")
	}
	switch settings.ModelBackend {
	case "born", "onnxruntime":
	default:
		return fmt.Errorf("model backend must be born or onnxruntime, got %q", settings.ModelBackend)
	}
	if settings.FetchTimeout < time.Second || settings.FetchTimeout > 10*time.Minute {
		return fmt.Errorf("model fetch timeout must be between 1s and 10m, got %v", settings.FetchTimeout)
	}

	if settings.CanvasWidth < 28 || settings.CanvasWidth > 4096 {
		return fmt.Errorf("canvas width must be between 28 and 4096, got %d", settings.CanvasWidth)
	}
	if settings.CanvasHeight < 28 || settings.CanvasHeight > 4096 {
		return fmt.Errorf("canvas height must be between 28 and 4096, got %d", settings.CanvasHeight)
	}
	if settings.BrushWidth <= 0 || settings.BrushWidth > 100 {
		return fmt.Errorf("brush width must be between 0 and 100, got %f", settings.BrushWidth)
	}
	if settings.TopK < 1 || settings.TopK > 10 {
		return fmt.Errorf("top-k must be between 1 and 10, got %d", settings.TopK)
	}

	return nil
}
