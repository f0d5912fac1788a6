package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	c := DefaultConfig()
	assert.NilError(t, Validate(c))
	assert.Equal(t, c.Web.ListenAddress, "0.0.0.0:8000")
	assert.Equal(t, c.OCR.TesseractCmd, "tesseract")
	assert.Equal(t, c.Project.Name, "ReadEase API")
}

func TestApplyEnv(t *testing.T) {
	c := DefaultConfig()
	err := ApplyEnv(c, envMap(map[string]string{
		"PORT":                "9000",
		"TESSERACT_CMD":       "/usr/bin/tesseract",
		"TESSERACT_LANGUAGES": "eng+ita",
		"CORS_ORIGINS":        "https://a.example, https://b.example",
		"GEMINI_API_KEY":      "g",
		"TASKS_WORKERS":       "4",
		"DEBUG":               "true",
		"ALLOW_PRIVATE_FETCH": "1",
	}))
	assert.NilError(t, err)

	assert.Equal(t, c.Web.ListenAddress, "0.0.0.0:9000")
	assert.Equal(t, c.OCR.TesseractCmd, "/usr/bin/tesseract")
	assert.DeepEqual(t, c.OCR.Languages, []string{"eng", "ita"})
	assert.DeepEqual(t, c.Web.CORSOrigins, []string{"https://a.example", "https://b.example"})
	assert.Equal(t, c.Gemini.APIKey, "g")
	assert.Equal(t, c.Tasks.Workers, 4)
	assert.Assert(t, c.Debug)
	assert.Assert(t, c.Web.AllowPrivateFetch)
}

func TestApplyEnvErrors(t *testing.T) {
	for _, env := range []map[string]string{
		{"DEBUG": "maybe"},
		{"TASKS_WORKERS": "two"},
	} {
		assert.Assert(t, ApplyEnv(DefaultConfig(), envMap(env)) != nil, "env %v", env)
	}

	c := DefaultConfig()
	c.Web.ListenAddress = "nonsense"
	assert.ErrorContains(t, ApplyEnv(c, envMap(map[string]string{"PORT": "1"})), "cannot apply PORT")
}

func TestParse(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "config.yml")
	data := `
web:
  listenAddress: "127.0.0.1:8080"
ocr:
  engine: cli
  timeout: 5s
storage:
  type: s3
  s3:
    endpoint: minio:9000
    bucket: readease
tasks:
  db:
    type: sqlite3
    connString: /tmp/tasks.db
`
	assert.NilError(t, os.WriteFile(configFile, []byte(data), 0o600))

	envFile := filepath.Join(dir, "test.env")
	assert.NilError(t, os.WriteFile(envFile, []byte("READEASE_TEST_ONLY=1\n"), 0o600))

	for _, k := range []string{"LISTEN_ADDRESS", "PORT", "CORS_ORIGINS", "TESSERACT_CMD", "OCR_ENGINE", "TESSDATA_PREFIX", "TESSERACT_LANGUAGES",
		"MISTRAL_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "STORAGE_TYPE", "STORAGE_PATH", "S3_ENDPOINT", "S3_BUCKET",
		"S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_USE_SSL", "TASKS_DB_TYPE", "TASKS_DB_CONN_STRING", "TASKS_WORKERS", "DEBUG", "ALLOW_PRIVATE_FETCH"} {
		t.Setenv(k, "")
	}

	c, err := Parse(configFile, envFile)
	assert.NilError(t, err)

	want := DefaultConfig()
	want.Web.ListenAddress = "127.0.0.1:8080"
	want.OCR.Timeout = 5 * time.Second
	want.Storage.Type = StorageTypeS3
	want.Storage.S3 = S3{Endpoint: "minio:9000", Bucket: "readease"}
	want.Tasks.DB = DB{Type: DBTypeSqlite3, ConnString: "/tmp/tasks.db"}

	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, os.Getenv("READEASE_TEST_ONLY"), "1")
	os.Unsetenv("READEASE_TEST_ONLY")

	_, err = Parse(filepath.Join(dir, "missing.yml"), "")
	assert.Assert(t, err != nil)
	_, err = Parse("", filepath.Join(dir, "missing.env"))
	assert.ErrorContains(t, err, "cannot load env file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"empty listen address", func(c *Config) { c.Web.ListenAddress = "" }, "listen address undefined"},
		{"unknown engine", func(c *Config) { c.OCR.Engine = "magic" }, `unknown ocr engine "magic"`},
		{"no languages", func(c *Config) { c.OCR.Languages = nil }, "at least one ocr language"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "ftp" }, `unknown storage type "ftp"`},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = StorageTypeS3; c.Storage.S3.Endpoint = "x" }, "s3 bucket undefined"},
		{"s3 without endpoint", func(c *Config) { c.Storage.Type = StorageTypeS3; c.Storage.S3.Bucket = "b" }, "s3 endpoint undefined"},
		{"unknown db", func(c *Config) { c.Tasks.DB.Type = "mongo" }, `unknown task db type "mongo"`},
		{"sqlite without conn", func(c *Config) { c.Tasks.DB.Type = DBTypeSqlite3 }, "connString undefined"},
		{"zero workers", func(c *Config) { c.Tasks.Workers = 0 }, "workers must be positive"},
		{"rate too high", func(c *Config) { c.Google.DefaultRate = 5 }, "default speaking rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.ErrorContains(t, Validate(c), tt.errMsg)
		})
	}
}
