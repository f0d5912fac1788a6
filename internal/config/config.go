package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sorintlab/errors"
	yaml "gopkg.in/yaml.v3"
)

const (
	OCREngineCLI     = "cli"
	OCREngineLibrary = "library"

	StorageTypePosix = "posix"
	StorageTypeS3    = "s3"

	DBTypeMemory   = "memory"
	DBTypeSqlite3  = "sqlite3"
	DBTypePostgres = "postgres"

	MinSpeakingRate = 0.25
	MaxSpeakingRate = 4.0
)

type Config struct {
	Debug bool `yaml:"debug"`

	Project Project `yaml:"project"`
	Web     Web     `yaml:"web"`
	OCR     OCR     `yaml:"ocr"`
	Mistral Mistral `yaml:"mistral"`
	Gemini  Gemini  `yaml:"gemini"`
	Google  Google  `yaml:"google"`
	Storage Storage `yaml:"storage"`
	Tasks   Tasks   `yaml:"tasks"`

	// HTTPTimeout bounds every call to a remote provider.
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
}

type Project struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

type Web struct {
	// http listen addess
	ListenAddress string `yaml:"listenAddress"`

	CORSOrigins    []string `yaml:"corsOrigins"`
	MaxUploadBytes int64    `yaml:"maxUploadBytes"`
	// AllowPrivateFetch lets the accessibility checker fetch pages from
	// loopback and private network addresses.
	AllowPrivateFetch bool `yaml:"allowPrivateFetch"`
}

type OCR struct {
	TesseractCmd   string        `yaml:"tesseractCmd"`
	Engine         string        `yaml:"engine"`
	Languages      []string      `yaml:"languages"`
	DPI            int           `yaml:"dpi"`
	Timeout        time.Duration `yaml:"timeout"`
	TessdataPrefix string        `yaml:"tessdataPrefix"`
	// CacheSize is the number of OCR results kept in memory. 0 disables
	// the cache.
	CacheSize int `yaml:"cacheSize"`
}

type Mistral struct {
	APIKey string `yaml:"apiKey"`
	URL    string `yaml:"url"`
	Model  string `yaml:"model"`
}

type Gemini struct {
	APIKey     string `yaml:"apiKey"`
	URL        string `yaml:"url"`
	Model      string `yaml:"model"`
	MediaModel string `yaml:"mediaModel"`
}

type Google struct {
	APIKey       string  `yaml:"apiKey"`
	TTSURL       string  `yaml:"ttsURL"`
	STTURL       string  `yaml:"sttURL"`
	DefaultVoice string  `yaml:"defaultVoice"`
	DefaultRate  float64 `yaml:"defaultRate"`
}

type Storage struct {
	Type string `yaml:"type"`
	// Path is the base directory of the posix storage.
	Path string `yaml:"path"`
	S3   S3     `yaml:"s3"`
}

type S3 struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	Location  string `yaml:"location"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
}

type Tasks struct {
	DB        DB  `yaml:"db"`
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queueSize"`
}

type DB struct {
	Type       string `yaml:"type"`
	ConnString string `yaml:"connString"`
}

func DefaultConfig() *Config {
	return &Config{
		Project: Project{
			Name:        "ReadEase API",
			Description: "API for accessibility tools for people with dyslexia",
			Version:     "0.1.0",
		},
		Web: Web{
			ListenAddress:  "0.0.0.0:8000",
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:8000"},
			MaxUploadBytes: 32 << 20,
		},
		OCR: OCR{
			TesseractCmd: "tesseract",
			Engine:       OCREngineCLI,
			Languages:    []string{"eng"},
			DPI:          300,
			Timeout:      60 * time.Second,
			CacheSize:    128,
		},
		Mistral: Mistral{
			URL:   "https://api.mistral.ai",
			Model: "mistral-ocr-latest",
		},
		Gemini: Gemini{
			URL:        "https://generativelanguage.googleapis.com",
			Model:      "gemini-1.5-flash",
			MediaModel: "gemini-2.0-flash-exp",
		},
		Google: Google{
			TTSURL:       "https://texttospeech.googleapis.com",
			STTURL:       "https://speech.googleapis.com",
			DefaultVoice: "en-US-Wavenet-D",
			DefaultRate:  1.0,
		},
		Storage: Storage{
			Type: StorageTypePosix,
			Path: "data",
		},
		Tasks: Tasks{
			DB:        DB{Type: DBTypeMemory},
			Workers:   2,
			QueueSize: 64,
		},
		HTTPTimeout: 120 * time.Second,
	}
}

// Parse builds the configuration from defaults, the optional YAML file, the
// optional dotenv file and the process environment, in that order.
func Parse(configFile, envFile string) (*Config, error) {
	c := DefaultConfig()

	if configFile != "" {
		configData, err := os.ReadFile(configFile)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		if err := yaml.Unmarshal(configData, c); err != nil {
			return nil, errors.Wrapf(err, "cannot parse config file %q", configFile)
		}
	}

	if err := loadEnvFile(envFile); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := ApplyEnv(c, os.LookupEnv); err != nil {
		return nil, errors.WithStack(err)
	}

	return c, Validate(c)
}

// loadEnvFile loads dotenv variables without overriding the environment. A
// missing default .env file is not an error.
func loadEnvFile(envFile string) error {
	if envFile == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		return errors.Wrapf(err, "cannot load env file %q", envFile)
	}
	return nil
}

// ApplyEnv overrides c with values found through lookup.
func ApplyEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = splitList(v)
		}
	}
	boolean := func(name string, dst *bool) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s value %q", name, v)
		}
		*dst = b
		return nil
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %s value %q", name, v)
		}
		*dst = n
		return nil
	}

	str("LISTEN_ADDRESS", &c.Web.ListenAddress)
	if port, ok := lookup("PORT"); ok && port != "" {
		host, _, err := net.SplitHostPort(c.Web.ListenAddress)
		if err != nil {
			return errors.Wrapf(err, "cannot apply PORT to listen address %q", c.Web.ListenAddress)
		}
		c.Web.ListenAddress = net.JoinHostPort(host, port)
	}
	list("CORS_ORIGINS", &c.Web.CORSOrigins)

	str("TESSERACT_CMD", &c.OCR.TesseractCmd)
	str("OCR_ENGINE", &c.OCR.Engine)
	str("TESSDATA_PREFIX", &c.OCR.TessdataPrefix)
	if v, ok := lookup("TESSERACT_LANGUAGES"); ok && v != "" {
		c.OCR.Languages = splitList(strings.ReplaceAll(v, "+", ","))
	}

	str("MISTRAL_API_KEY", &c.Mistral.APIKey)
	str("GEMINI_API_KEY", &c.Gemini.APIKey)
	str("GOOGLE_API_KEY", &c.Google.APIKey)

	str("STORAGE_TYPE", &c.Storage.Type)
	str("STORAGE_PATH", &c.Storage.Path)
	str("S3_ENDPOINT", &c.Storage.S3.Endpoint)
	str("S3_BUCKET", &c.Storage.S3.Bucket)
	str("S3_ACCESS_KEY", &c.Storage.S3.AccessKey)
	str("S3_SECRET_KEY", &c.Storage.S3.SecretKey)

	str("TASKS_DB_TYPE", &c.Tasks.DB.Type)
	str("TASKS_DB_CONN_STRING", &c.Tasks.DB.ConnString)
	if err := integer("TASKS_WORKERS", &c.Tasks.Workers); err != nil {
		return err
	}
	if err := boolean("S3_USE_SSL", &c.Storage.S3.UseSSL); err != nil {
		return err
	}
	if err := boolean("ALLOW_PRIVATE_FETCH", &c.Web.AllowPrivateFetch); err != nil {
		return err
	}
	return boolean("DEBUG", &c.Debug)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Validate(c *Config) error {
	if c.Web.ListenAddress == "" {
		return errors.Errorf("listen address undefined")
	}
	if _, _, err := net.SplitHostPort(c.Web.ListenAddress); err != nil {
		return errors.Wrapf(err, "invalid listen address %q", c.Web.ListenAddress)
	}
	if c.Web.MaxUploadBytes <= 0 {
		return errors.Errorf("maxUploadBytes must be positive")
	}

	switch c.OCR.Engine {
	case OCREngineCLI, OCREngineLibrary:
	default:
		return errors.Errorf("unknown ocr engine %q", c.OCR.Engine)
	}
	if c.OCR.Engine == OCREngineCLI && c.OCR.TesseractCmd == "" {
		return errors.Errorf("tesseract command undefined")
	}
	if len(c.OCR.Languages) == 0 {
		return errors.Errorf("at least one ocr language is required")
	}
	if c.OCR.DPI < 0 {
		return errors.Errorf("invalid ocr dpi %d", c.OCR.DPI)
	}

	if c.Google.DefaultRate < MinSpeakingRate || c.Google.DefaultRate > MaxSpeakingRate {
		return errors.Errorf("default speaking rate %v outside [%v, %v]", c.Google.DefaultRate, MinSpeakingRate, MaxSpeakingRate)
	}

	switch c.Storage.Type {
	case StorageTypePosix:
		if c.Storage.Path == "" {
			return errors.Errorf("posix storage path undefined")
		}
	case StorageTypeS3:
		if c.Storage.S3.Bucket == "" {
			return errors.Errorf("s3 bucket undefined")
		}
		if c.Storage.S3.Endpoint == "" {
			return errors.Errorf("s3 endpoint undefined")
		}
	default:
		return errors.Errorf("unknown storage type %q", c.Storage.Type)
	}

	switch c.Tasks.DB.Type {
	case DBTypeMemory:
	case DBTypeSqlite3, DBTypePostgres:
		if c.Tasks.DB.ConnString == "" {
			return errors.Errorf("task db connString undefined for db type %q", c.Tasks.DB.Type)
		}
	default:
		return errors.Errorf("unknown task db type %q", c.Tasks.DB.Type)
	}
	if c.Tasks.Workers <= 0 {
		return errors.Errorf("task workers must be positive")
	}
	if c.Tasks.QueueSize <= 0 {
		return errors.Errorf("task queue size must be positive")
	}

	return nil
}
