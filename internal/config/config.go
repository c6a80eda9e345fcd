package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	Host     string   `koanf:"host"`
	Listen   string   `koanf:"listen"`
	Google   Google   `koanf:"google"`
	Database Database `koanf:"db"`
	Auth     Auth     `koanf:"auth"`
	Mirror   Mirror   `koanf:"mirror"`
	Calendar Calendar `koanf:"calendar"`
	Client   Client   `koanf:"client"`
}

type Google struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

// Auth maps bearer tokens to the owner they authenticate.
type Auth struct {
	Tokens map[string]string `koanf:"tokens"`
}

// Mirror configures the Google Calendar mirror of the local store.
type Mirror struct {
	Enabled     bool   `koanf:"enabled"`
	Schedule    string `koanf:"schedule"`
	MaxAttempts int    `koanf:"maxattempts"`
	BatchSize   int    `koanf:"batchsize"`
}

type Calendar struct {
	DefaultId   string `koanf:"defaultid"`
	PushEnabled bool   `koanf:"pushenabled"`
}

// Client is read by the calsync command line client only.
type Client struct {
	BaseUrl         string        `koanf:"baseurl"`
	Token           string        `koanf:"token"`
	CalendarId      string        `koanf:"calendarid"`
	RefreshInterval time.Duration `koanf:"refreshinterval"`
	RequestTimeout  time.Duration `koanf:"requesttimeout"`
	Timezone        string        `koanf:"timezone"`
	PushEnabled     bool          `koanf:"pushenabled"`
}

// Defaults returns the configuration used when neither file nor environment override a key.
func Defaults() Application {
	return Application{
		Host:   "http://localhost:8282",
		Listen: ":8282",
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "calsync",
			Pass:   "",
			Name:   "calsync",
			Schema: "calsync",
		},
		Mirror: Mirror{
			Enabled:     true,
			Schedule:    "@every 5m",
			MaxAttempts: 5,
			BatchSize:   100,
		},
		Calendar: Calendar{
			DefaultId:   "primary",
			PushEnabled: false,
		},
		Client: Client{
			BaseUrl:         "http://localhost:8282",
			CalendarId:      "primary",
			RefreshInterval: time.Minute,
			RequestTimeout:  15 * time.Second,
			Timezone:        "Local",
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(Defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: "CALSYNC_",
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, "CALSYNC_")), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}

// Location resolves the client time zone, falling back to time.Local.
func (c Client) Location() *time.Location {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Warnf("unknown client timezone %q, using local time: %v", c.Timezone, err)
		return time.Local
	}
	return loc
}
