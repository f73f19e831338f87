package appconfig

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"sigs.k8s.io/yaml"
)

type OAuthConfig struct {
	ClientId     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty" mask:"true"`
	RedirectUrl  string `json:"redirect_url,omitempty"`
}

func (o OAuthConfig) Enabled() bool {
	return o.ClientId != "" && o.ClientSecret != ""
}

// CallbackUrl returns the configured redirect url or one derived from the root url.
func (o OAuthConfig) CallbackUrl(rootUrl string, path string) string {
	if o.RedirectUrl != "" {
		return o.RedirectUrl
	}
	return strings.TrimSuffix(rootUrl, "/") + path
}

const (
	StorageTypeMemory   = "memory"
	StorageTypeFile     = "file"
	StorageTypePostgres = "postgres"
	StorageTypeSqlite   = "sqlite"

	CacheTypeNone   = "none"
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

type AppConfig struct {
	environmentVariablePrefix string
	Name                      string `json:"name,omitempty" default:"Passport Example"`
	Environment               string `json:"environment,omitempty" default:"development"`
	MetricsAddr               string `json:"metrics_addr,omitempty" default:"localhost:8099"`
	ListenAddr                string `json:"listen_addr,omitempty" default:"localhost:8090"`
	DevelopmentMode           bool   `json:"development_mode,omitempty" default:"false"`
	RootUrl                   string `json:"root_url,omitempty" default:"http://localhost:8090"`
	ConfigFile                string `json:"config_file" default:"app.conf.yml"`
	EnvFile                   string `json:"env_file" default:".env"`
	Storage                   struct {
		Type      string `json:"type" default:"memory"`
		Directory string `json:"dir,omitempty" default:".data"`
		Postgres  struct {
			Host     string `json:"host,omitempty" default:"localhost"`
			Port     int    `json:"port,omitempty" default:"5432"`
			Database string `json:"database,omitempty"`
			Username string `json:"username,omitempty"`
			Password string `json:"password,omitempty" mask:"true"`
			SslMode  string `json:"sslmode,omitempty" default:"disable"`
		} `json:"postgres"`
		Sqlite struct {
			Path string `json:"path,omitempty" default:"profiles.db"`
		} `json:"sqlite"`
		S3 struct {
			Region          string `json:"region,omitempty"`
			AccessKeyId     string `json:"access_key_id,omitempty"`
			SecretAccessKey string `json:"secret_access_key,omitempty" mask:"true"`
		} `json:"s3"`
	} `json:"storage,omitempty"`

	Cache struct {
		Type       string `json:"type" default:"memory"`
		TtlSeconds int    `json:"ttl_seconds,omitempty" default:"3600"`
		Redis      struct {
			Addr     string `json:"addr,omitempty" default:"localhost:6379"`
			Password string `json:"password,omitempty" mask:"true"`
			Db       int    `json:"db,omitempty"`
			Prefix   string `json:"prefix,omitempty" default:"profile:"`
		} `json:"redis"`
	} `json:"cache,omitempty"`

	Session struct {
		SignKey       string `json:"sign_key,omitempty" mask:"true"`
		CookieName    string `json:"cookie_name,omitempty" default:"passport_session"`
		MaxAgeSeconds int    `json:"max_age_seconds,omitempty" default:"86400"`
		Secure        bool   `json:"secure,omitempty" default:"false"`
	} `json:"session"`

	Auth struct {
		Google   OAuthConfig `json:"google"`
		Twitter  OAuthConfig `json:"twitter"`
		Facebook OAuthConfig `json:"facebook"`
	} `json:"auth"`
}

func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// SecureCookies is forced on in production, elsewhere it follows session.secure.
func (a *AppConfig) SecureCookies() bool {
	return a.Session.Secure || a.IsProduction()
}

func (a *AppConfig) LoadDefaults() error {
	return walk([]string{a.environmentVariablePrefix}, reflect.ValueOf(a), "defaults", func(key string, path []string, tag reflect.StructTag) string {
		return tag.Get("default")
	})
}

func (a *AppConfig) DebugPrint() {
	debugWalk(0, reflect.ValueOf(a), nil)
}

func (a *AppConfig) LoadFromEnv() error {
	return walk([]string{a.environmentVariablePrefix}, reflect.ValueOf(a), "env", func(key string, path []string, tag reflect.StructTag) string {
		return getFromEnv(key, path...)
	})
}

// LoadDotEnv loads a dotenv file into the process environment without overriding
// variables that are already set. A missing file is not an error.
func (a *AppConfig) LoadDotEnv(filename string) error {
	if filename == "" {
		return nil
	}
	err := godotenv.Load(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (a *AppConfig) LoadFromYaml(r io.Reader) error {
	bytes, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(bytes, a)
}

func (a *AppConfig) SetEnvironmentVariablePrefix(v string) {
	a.environmentVariablePrefix = v
}

func getEnvironmentVariablesWithPrefix(prefix string) map[string]string {
	res := map[string]string{}
	for _, env := range os.Environ() {
		key, value, _ := strings.Cut(env, "=")
		if after, ok := strings.CutPrefix(key, prefix); ok {
			res[after] = value
		}
	}
	return res
}

// WithEnvContext runs f with every PREFIX* variable temporarily exported without the prefix.
func WithEnvContext[T any](prefix string, f func() (T, error)) (T, error) {
	restore := patchEnvironment(getEnvironmentVariablesWithPrefix(prefix))
	defer restore()
	return f()
}

func patchEnvironment(envVars map[string]string) (restoreFunc func()) {
	restore := map[string]string{}
	unset := []string{}
	for k, v := range envVars {
		restoreVal, exists := os.LookupEnv(k)
		if exists {
			restore[k] = restoreVal
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}
	return func() {
		for k, v := range restore {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}

func getFromEnv(key string, path ...string) string {
	v := key
	if len(path) > 0 {
		v = fmt.Sprintf("%s__%s", strings.Join(path, "__"), key)
	}
	return os.Getenv(strings.ToUpper(v))
}

func prettyPath(key string, path ...string) string {
	return strings.ToLower(strings.Join(append(path, key), "."))
}

func maskValue(value any, tags reflect.StructTag) string {
	valueStr := fmt.Sprint(value)
	if tags.Get("mask") != "" {
		return strings.Repeat("*", len(valueStr))
	}
	return valueStr
}

type valueSource func(key string, path []string, tag reflect.StructTag) string

func walk(path []string, v reflect.Value, source string, lookup valueSource) error {
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		fld := v.Field(i)
		fldType := t.Field(i)
		name := fldType.Name
		if fld.Kind() == reflect.Struct {
			if err := walk(append(path, name), fld, source, lookup); err != nil {
				return err
			}
			continue
		}
		if jsonName := strings.Split(fldType.Tag.Get("json"), ",")[0]; jsonName != "" {
			name = jsonName
		}
		value := lookup(name, path, fldType.Tag)
		if value == "" {
			continue
		}
		if !fld.CanSet() {
			slog.Debug("config", "skipping", prettyPath(name, path...))
			continue
		}
		slog.Debug("config", "set", prettyPath(name, path...), "value", maskValue(value, fldType.Tag), "source", source)
		if err := setValue(fld, value); err != nil {
			return fmt.Errorf("[%s] %w", prettyPath(name, path...), err)
		}
	}
	return nil
}

func setValue(fld reflect.Value, value string) error {
	switch k := fld.Kind(); k {
	case reflect.Array, reflect.Slice:
		fld.Set(reflect.ValueOf(strings.Split(value, ",")))
	case reflect.String:
		fld.SetString(value)
	case reflect.Bool:
		fld.SetBool(!(strings.ToLower(value) == "false" || value == "0"))
	case reflect.Int, reflect.Int16, reflect.Int64, reflect.Int32:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value [%s] for int", value)
		}
		fld.SetInt(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value [%s] for float", value)
		}
		fld.SetFloat(n)
	case reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value [%s] for uint", value)
		}
		fld.SetUint(n)
	default:
		slog.Debug("config", "unknown", value, "type", k)
	}
	return nil
}

func debugWalk(indent identer, v reflect.Value, fld *reflect.StructField) {
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	t := v.Type()
	name := t.Name()
	if fld != nil {
		name = fld.Name
	}
	fmt.Printf("%s%s {\n", indent, name)
	for i := 0; i < v.NumField(); i++ {
		fld := v.Field(i)
		fldType := t.Field(i)
		if !fld.CanSet() {
			continue
		}
		if fld.Kind() == reflect.Struct {
			debugWalk(indent+1, fld, &fldType)
			continue
		}
		fmt.Printf("%s%s: %v\n", indent+1, fldType.Name, maskValue(fld, fldType.Tag))
	}
	fmt.Printf("%s}\n", indent)
}

type identer int

func (s identer) String() string {
	return strings.Repeat("  ", int(s))
}
