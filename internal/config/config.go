// Package config holds the server configuration: backend address, polling
// cadence, routing and geocoding services, the known-location gazetteer, and
// merge tuning. Everything is explicit construction input; nothing reads
// globals at use time.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Geocoding GeocodingConfig `mapstructure:"geocoding"`
	Merge     MergeConfig     `mapstructure:"merge"`
	Push      PushConfig      `mapstructure:"push"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Port        int      `mapstructure:"port" validate:"gt=0,lte=65535"`
	CorsOrigins []string `mapstructure:"cors_origins"`
}

// BackendConfig holds the collective-traffic backend settings.
type BackendConfig struct {
	BaseURL         string        `mapstructure:"base_url" validate:"required,url"`
	WSURL           string        `mapstructure:"ws_url" validate:"required"`
	PollingInterval time.Duration `mapstructure:"polling_interval" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// RoutingConfig holds routing source settings.
type RoutingConfig struct {
	OSRMURL         string        `mapstructure:"osrm_url" validate:"required,url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	AverageSpeedKmh float64       `mapstructure:"average_speed_kmh" validate:"gt=0"`
	DebounceDelay   time.Duration `mapstructure:"debounce_delay"`
}

// GeocodingConfig holds the gazetteer and place-search settings.
type GeocodingConfig struct {
	NominatimURL   string          `mapstructure:"nominatim_url" validate:"required,url"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout" validate:"gt=0"`
	Gazetteer      []KnownLocation `mapstructure:"gazetteer" validate:"min=1,dive"`
}

// KnownLocation is one fixed gazetteer entry.
type KnownLocation struct {
	Name string  `mapstructure:"name" validate:"required"`
	Lat  float64 `mapstructure:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `mapstructure:"lng" validate:"gte=-180,lte=180"`
}

// MergeConfig tunes the observation merge engine.
type MergeConfig struct {
	ProximityThresholdDegrees float64 `mapstructure:"proximity_threshold_degrees" validate:"gt=0"`
	SeedPointCount            int     `mapstructure:"seed_point_count" validate:"gte=0"`
	RandomSeed                int64   `mapstructure:"random_seed"`
}

// PushConfig tunes the push channel.
type PushConfig struct {
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" validate:"gt=0"`
}

// Load reads configuration with Viper from the given file (YAML), falling
// back to ./config.yaml, plus environment variables. Defaults cover every
// option, so a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("NAMMATRAFFIC")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	hook := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			dc.DecodeHook,
			mapstructure.StringToTimeDurationHookFunc(),
		)
	})
	if err := v.Unmarshal(&config, hook); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.cors_origins", defaults.Server.CorsOrigins)
	v.SetDefault("backend.base_url", defaults.Backend.BaseURL)
	v.SetDefault("backend.ws_url", defaults.Backend.WSURL)
	v.SetDefault("backend.polling_interval", defaults.Backend.PollingInterval)
	v.SetDefault("backend.request_timeout", defaults.Backend.RequestTimeout)
	v.SetDefault("routing.osrm_url", defaults.Routing.OSRMURL)
	v.SetDefault("routing.request_timeout", defaults.Routing.RequestTimeout)
	v.SetDefault("routing.average_speed_kmh", defaults.Routing.AverageSpeedKmh)
	v.SetDefault("routing.debounce_delay", defaults.Routing.DebounceDelay)
	v.SetDefault("geocoding.nominatim_url", defaults.Geocoding.NominatimURL)
	v.SetDefault("geocoding.request_timeout", defaults.Geocoding.RequestTimeout)
	v.SetDefault("merge.proximity_threshold_degrees", defaults.Merge.ProximityThresholdDegrees)
	v.SetDefault("merge.seed_point_count", defaults.Merge.SeedPointCount)
	v.SetDefault("merge.random_seed", defaults.Merge.RandomSeed)
	v.SetDefault("push.reconnect_delay", defaults.Push.ReconnectDelay)

	gazetteer := make([]map[string]interface{}, len(defaults.Geocoding.Gazetteer))
	for i, loc := range defaults.Geocoding.Gazetteer {
		gazetteer[i] = map[string]interface{}{"name": loc.Name, "lat": loc.Lat, "lng": loc.Lng}
	}
	v.SetDefault("geocoding.gazetteer", gazetteer)
}

// Default returns the built-in configuration, gazetteer included.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CorsOrigins: []string{"*"},
		},
		Backend: BackendConfig{
			BaseURL:         "http://localhost:8000",
			WSURL:           "ws://localhost:8000/ws/traffic",
			PollingInterval: 10 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Routing: RoutingConfig{
			OSRMURL:         "https://router.project-osrm.org",
			RequestTimeout:  15 * time.Second,
			AverageSpeedKmh: 30,
			DebounceDelay:   800 * time.Millisecond,
		},
		Geocoding: GeocodingConfig{
			NominatimURL:   "https://nominatim.openstreetmap.org",
			RequestTimeout: 8 * time.Second,
			Gazetteer: []KnownLocation{
				{Name: "Majestic Bus Station", Lat: 12.9774, Lng: 77.5708},
				{Name: "MG Road", Lat: 12.9758, Lng: 77.6096},
				{Name: "Cubbon Park", Lat: 12.9763, Lng: 77.5929},
				{Name: "Vidhana Soudha", Lat: 12.9794, Lng: 77.5912},
				{Name: "Koramangala", Lat: 12.9352, Lng: 77.6245},
				{Name: "Indiranagar", Lat: 12.9719, Lng: 77.6412},
				{Name: "Jayanagar", Lat: 12.9308, Lng: 77.5838},
				{Name: "Malleshwaram", Lat: 13.0031, Lng: 77.5643},
				{Name: "Banashankari", Lat: 12.9255, Lng: 77.5468},
				{Name: "Hebbal", Lat: 13.0358, Lng: 77.5970},
				{Name: "Marathahalli", Lat: 12.9591, Lng: 77.6974},
				{Name: "Whitefield", Lat: 12.9698, Lng: 77.7500},
				{Name: "Electronic City", Lat: 12.8399, Lng: 77.6770},
				{Name: "Silk Board Junction", Lat: 12.9177, Lng: 77.6233},
			},
		},
		Merge: MergeConfig{
			ProximityThresholdDegrees: 0.001,
			SeedPointCount:            8,
			RandomSeed:                0, // 0 means seed from the clock
		},
		Push: PushConfig{
			ReconnectDelay: 5 * time.Second,
		},
	}
}
