// Package config holds the typed, per-stage pipeline configuration.
//
// Precedence is defaults < primary file < secondary file < environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/fusion"
)

// FileName is the primary config file written by `sfg init`.
const FileName = "sfg.json"

// Environment overlays.
const (
	EnvDataDir  = "SFG_DATA_DIR"
	EnvLogLevel = "SFG_LOG_LEVEL"
	EnvWorkers  = "SFG_WORKERS"
	EnvPDP3     = "SFG_PDP3_PATH"
	EnvHardware = "SFG_HARDWARE"
)

// PipelineConfig is the complete configuration of a run.
type PipelineConfig struct {
	Global   GlobalConfig   `json:"global"`
	Novatel  StageConfig    `json:"novatel"`
	Rinex    RinexConfig    `json:"rinex"`
	Pride    PrideConfig    `json:"pride"`
	Products ProductsConfig `json:"products"`
	Kin      StageConfig    `json:"kin"`
	Acoustic StageConfig    `json:"acoustic"`
	Fusion   FusionConfig   `json:"fusion"`
	Archive  ArchiveConfig  `json:"archive"`
}

type GlobalConfig struct {
	DataDir   string `json:"data_dir" validate:"required"`
	LogLevel  string `json:"log_level" validate:"oneof=debug info warn error"`
	LogPretty bool   `json:"log_pretty"`
	Workers   int    `json:"workers" validate:"gte=0"`
	Hardware  string `json:"hardware" validate:"oneof=sv2 sv3"`
}

// StageConfig is shared by every stage. Workers 0 falls back to the global
// setting, then to the CPU count.
type StageConfig struct {
	Override bool `json:"override"`
	Workers  int  `json:"workers" validate:"gte=0"`
}

type RinexConfig struct {
	StageConfig
	IntervalSeconds float64 `json:"interval_seconds" validate:"gt=0,lte=30"`
	// Year restricts output to one processing year; 0 derives it from the
	// campaign name.
	Year int `json:"year" validate:"eq=0|gte=1980"`
}

type PrideConfig struct {
	StageConfig
	Binary          string  `json:"binary" validate:"required"`
	IntervalSeconds float64 `json:"interval_seconds" validate:"gt=0"`
	System          string  `json:"system"`
	CutoffElevation int     `json:"cutoff_elevation" validate:"gte=0,lte=60"`
	LooseEdit       bool    `json:"loose_edit"`
	TimeoutSeconds  int     `json:"timeout_seconds" validate:"gt=0"`
}

type ProductsConfig struct {
	// Mirrors are directory URL templates tried in order. Placeholders:
	// {year}, {doy}, {week} and {dir} (orbit, clock or bias).
	Mirrors        []string `json:"mirrors" validate:"min=1,dive,required"`
	TimeoutSeconds int      `json:"timeout_seconds" validate:"gt=0"`
	Override       bool     `json:"override"`
}

type FusionConfig struct {
	StageConfig
	OutlierRadius float64 `json:"outlier_radius" validate:"gte=0"`
	InterpRadius  float64 `json:"interp_radius" validate:"gt=0"`
	BridgeGap     float64 `json:"bridge_gap" validate:"gte=0"`
	AlignMaxGap   float64 `json:"align_max_gap" validate:"gte=0"`
	StartDt       float64 `json:"start_dt" validate:"gt=0"`
	GNSSPosPSD    float64 `json:"gnss_pos_psd" validate:"gt=0"`
	VelPSD        float64 `json:"vel_psd" validate:"gt=0"`
	CovErr        float64 `json:"cov_err" validate:"gt=0"`
}

type ArchiveConfig struct {
	TimeoutSeconds int      `json:"timeout_seconds" validate:"gt=0"`
	Concurrency    int      `json:"concurrency" validate:"gte=1,lte=32"`
	Types          []string `json:"types"`
}

// Defaults returns the built-in configuration.
func Defaults() *PipelineConfig {
	k := fusion.DefaultKalman()
	f := fusion.DefaultConfig()
	return &PipelineConfig{
		Global: GlobalConfig{
			DataDir:  ".",
			LogLevel: "info",
			Hardware: "sv3",
		},
		Rinex: RinexConfig{IntervalSeconds: 1},
		Pride: PrideConfig{
			Binary:          "pdp3",
			IntervalSeconds: 1,
			System:          "GREC23J",
			CutoffElevation: 7,
			LooseEdit:       true,
			TimeoutSeconds:  3600,
		},
		Products: ProductsConfig{
			Mirrors: []string{
				"https://igs.gnsswhu.cn/pub/whu/phasebias/{year}/{dir}/",
				"https://igs.ign.fr/pub/igs/products/mgex/{week}/",
			},
			TimeoutSeconds: 120,
		},
		Fusion: FusionConfig{
			OutlierRadius: f.OutlierRadius,
			InterpRadius:  f.InterpRadius,
			BridgeGap:     f.BridgeGap,
			AlignMaxGap:   f.AlignMaxGap,
			StartDt:       k.StartDt,
			GNSSPosPSD:    k.GNSSPosPSD,
			VelPSD:        k.VelPSD,
			CovErr:        k.CovErr,
		},
		Archive: ArchiveConfig{
			TimeoutSeconds: 300,
			Concurrency:    4,
		},
	}
}

// Load builds the configuration from defaults, the optional primary and
// secondary JSON files, and the environment. Any failure wraps ErrConfig.
func Load(primary, secondary string) (*PipelineConfig, error) {
	_ = godotenv.Load() // a missing .env is fine

	cfg := Defaults()
	for _, path := range []string{primary, secondary} {
		if path == "" {
			continue
		}
		if err := overlayFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePrimary returns dir/sfg.json when it exists, else "".
func ResolvePrimary(dir string) string {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// overlayFile decodes path onto cfg. Fields absent from the file keep their
// current values.
func overlayFile(cfg *PipelineConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: failed to read config %s: %v", asset.ErrConfig, path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: failed to parse config %s: %v", asset.ErrConfig, path, err)
	}
	return nil
}

func applyEnv(cfg *PipelineConfig) error {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.Global.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Global.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: invalid %s: %s", asset.ErrConfig, EnvWorkers, v)
		}
		cfg.Global.Workers = n
	}
	if v := os.Getenv(EnvPDP3); v != "" {
		cfg.Pride.Binary = v
	}
	if v := os.Getenv(EnvHardware); v != "" {
		cfg.Global.Hardware = strings.ToLower(v)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint.
func (c *PipelineConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", asset.ErrConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", asset.ErrConfig, err)
	}
	for _, t := range c.Archive.Types {
		if _, err := asset.ParseType(t); err != nil {
			return err
		}
	}
	return nil
}

// WorkersFor resolves a stage's pool size.
func (c *PipelineConfig) WorkersFor(s StageConfig) int {
	switch {
	case s.Workers > 0:
		return s.Workers
	case c.Global.Workers > 0:
		return c.Global.Workers
	}
	return runtime.NumCPU()
}

// SetOverride turns override on for every stage.
func (c *PipelineConfig) SetOverride(on bool) {
	c.Novatel.Override = on
	c.Rinex.Override = on
	c.Pride.Override = on
	c.Kin.Override = on
	c.Acoustic.Override = on
	c.Fusion.Override = on
}

// Engine converts the fusion settings to the engine configuration.
func (f FusionConfig) Engine() fusion.Config {
	return fusion.Config{
		OutlierRadius: f.OutlierRadius,
		InterpRadius:  f.InterpRadius,
		BridgeGap:     f.BridgeGap,
		AlignMaxGap:   f.AlignMaxGap,
		Kalman: fusion.KalmanSmoother{
			StartDt:    f.StartDt,
			GNSSPosPSD: f.GNSSPosPSD,
			VelPSD:     f.VelPSD,
			CovErr:     f.CovErr,
		},
	}
}

// Timeout returns the solver timeout.
func (p PrideConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Timeout returns the per-mirror download timeout.
func (p ProductsConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// Timeout returns the per-file download timeout.
func (a ArchiveConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// DownloadTypes returns the configured pull types, or the defaults.
func (a ArchiveConfig) DownloadTypes() []asset.Type {
	if len(a.Types) == 0 {
		return asset.DownloadTypes
	}
	out := make([]asset.Type, 0, len(a.Types))
	for _, t := range a.Types {
		if pt, err := asset.ParseType(t); err == nil {
			out = append(out, pt)
		}
	}
	return out
}

// SaveConfig writes cfg to dir/sfg.json.
func SaveConfig(dir string, cfg *PipelineConfig) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
