package config

import (
	"encoding/json"
	"os"
	"path"
	"runtime"
	"strings"

	tl "github.com/tuumbleweed/tintlog/logger"
	"github.com/tuumbleweed/tintlog/palette"
	"github.com/tuumbleweed/xerr"
)

/*
DigestConfig controls digest composition and dispatch.

SupabaseURL and the provider API keys are NOT here on purpose: secrets
come from env vars (see CheckIfEnvVarsPresent call sites in cmd mains).
*/
type DigestConfig struct {
	SiteURL        string `json:"site_url,omitempty"`
	LogoURL        string `json:"logo_url,omitempty"`
	LogoPath       string `json:"logo_path,omitempty"`
	SenderAddress  string `json:"sender_address,omitempty"`
	EmailProvider  string `json:"email_provider,omitempty"`
	ChartWidth     int    `json:"chart_width,omitempty"`
	ChartHeight    int    `json:"chart_height,omitempty"`
	WeeklyRowLimit int    `json:"weekly_row_limit,omitempty"`
}

/*
ServerConfig mirrors the echo-middleware config block; main maps it onto
echomw.Config so the middleware package does not depend on this one.
*/
type ServerConfig struct {
	Address             string `json:"address,omitempty"`
	Port                int    `json:"port,omitempty"`
	MiddlewareRateLimit int    `json:"middleware_rate_limit,omitempty"`
	MiddlewareBurst     int    `json:"middleware_burst,omitempty"`
}

type Config struct {
	Digest DigestConfig `json:"digest,omitempty"`
	Server ServerConfig `json:"server,omitempty"`
}

func DefaultValueConfig() Config {
	return Config{
		Digest: DigestConfig{
			SiteURL:        "https://pennywize.vercel.app",
			LogoURL:        "https://pennywize.vercel.app/brand/pennywize-logo.png",
			LogoPath:       "./assets/pennywize-logo.png",
			SenderAddress:  "PennyWize <digest@stingyhubby.xyz>",
			EmailProvider:  "mailgun",
			ChartWidth:     1000,
			ChartHeight:    500,
			WeeklyRowLimit: 10,
		},
		Server: ServerConfig{
			Address:             "127.0.0.1",
			Port:                8402,
			MiddlewareRateLimit: 3,
			MiddlewareBurst:     50,
		},
	}
}

// create config with default values before config gets initialized
var Cfg Config = DefaultValueConfig() // this one we use to access config values from anywhere

/*
InitializeConfig loads the JSON config file into Cfg and fills every
missing field with its default value.

A missing file is not fatal: the defaults stay in place and a warning is
logged, so local runs work without a cfg directory.
*/
func InitializeConfig(configPath string) {
	fileBytes, readErr := os.ReadFile(configPath)
	if readErr != nil {
		tl.Log(tl.Warning, palette.YellowBold, "Unable to read config file '%s': %s. Using %s", configPath, readErr, "default configuration")
		return
	}

	var loaded Config
	unmarshalErr := json.Unmarshal(fileBytes, &loaded)
	xerr.QuitIfError(unmarshalErr, "unmarshal config file "+configPath)

	Cfg = loaded

	defaultConfig := DefaultValueConfig()
	tl.ApplyDefaults(&Cfg.Digest, defaultConfig.Digest, logMissingField)
	tl.ApplyDefaults(&Cfg.Server, defaultConfig.Server, logMissingField)

	tl.Log(tl.Info, palette.Green, "Loaded configuration from '%s'", configPath)
	tl.LogJSON(tl.Verbose, palette.CyanDim, "configuration", Cfg)
}

func logMissingField(field string, defVal any) {
	tl.Log(
		tl.Info, palette.Purple,
		"%s field is %s in %s configuration. Using default value: %v",
		field, "missing", GetPackageName(), tl.PrettyForStderr(defVal),
	)
}

/*
CheckIfEnvVarsPresent logs every missing env var and exits(1) if any
were missing. Call it first thing in main so a misconfigured deployment
fails before touching any external service.
*/
func CheckIfEnvVarsPresent(names ...string) {
	missing := false
	for _, name := range names {
		if strings.TrimSpace(os.Getenv(name)) == "" {
			tl.Log(tl.Warning, palette.YellowBold, "Environment variable '%s' is %s", name, "not set")
			missing = true
		}
	}
	if missing {
		os.Exit(1)
	}
}

// GetPackageName returns the caller's package name, for log prefixes.
func GetPackageName() string {
	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return "unknown"
	}
	fullName := runtime.FuncForPC(pc).Name() // e.g. pennywize/src/pkg/store.(*Client).do
	shortName := path.Base(fullName)
	if dotIndex := strings.Index(shortName, "."); dotIndex > 0 {
		return shortName[:dotIndex]
	}
	return shortName
}
