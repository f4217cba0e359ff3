package gcp

import (
	"fmt"
	"net/url"
	"strings"
)

type ObjectStorageMode string

const (
	ObjectStorageModeGCS         ObjectStorageMode = "gcs"
	ObjectStorageModeGCSEmulator ObjectStorageMode = "gcs_emulator"
)

type ObjectStorageConfig struct {
	Mode         ObjectStorageMode
	EmulatorHost string
	// Inferred is true when no mode was given and the emulator host picked it.
	Inferred bool
}

func (cfg ObjectStorageConfig) IsEmulatorMode() bool {
	return cfg.Mode == ObjectStorageModeGCSEmulator
}

type ObjectStorageConfigError struct {
	Mode         string
	EmulatorHost string
	Reason       string
	Cause        error
}

func (e *ObjectStorageConfigError) Error() string {
	return fmt.Sprintf("object storage config: %s (OBJECT_STORAGE_MODE=%q STORAGE_EMULATOR_HOST=%q)", e.Reason, e.Mode, e.EmulatorHost)
}

func (e *ObjectStorageConfigError) Unwrap() error { return e.Cause }

// ResolveObjectStorageConfig interprets OBJECT_STORAGE_MODE and STORAGE_EMULATOR_HOST.
// An empty mode selects the emulator when a host is given, real GCS otherwise.
func ResolveObjectStorageConfig(rawMode, emulatorHost string) (ObjectStorageConfig, error) {
	cfg := ObjectStorageConfig{EmulatorHost: strings.TrimRight(strings.TrimSpace(emulatorHost), "/")}
	switch mode := ObjectStorageMode(strings.ToLower(strings.TrimSpace(rawMode))); mode {
	case "":
		cfg.Mode = ObjectStorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = ObjectStorageModeGCSEmulator
			cfg.Inferred = true
		}
	case ObjectStorageModeGCS, ObjectStorageModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, &ObjectStorageConfigError{
			Mode:   rawMode,
			Reason: fmt.Sprintf("unknown mode (allowed: %q, %q)", ObjectStorageModeGCS, ObjectStorageModeGCSEmulator),
		}
	}
	return cfg, cfg.Validate()
}

func (cfg ObjectStorageConfig) Validate() error {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		return nil
	case ObjectStorageModeGCSEmulator:
	default:
		return &ObjectStorageConfigError{Mode: string(cfg.Mode), Reason: "unknown mode"}
	}
	if cfg.EmulatorHost == "" {
		return &ObjectStorageConfigError{Mode: string(cfg.Mode), Reason: "emulator mode requires STORAGE_EMULATOR_HOST"}
	}
	u, err := url.Parse(cfg.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ObjectStorageConfigError{
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Reason:       "emulator host must be an absolute URL like http://fake-gcs:4443",
			Cause:        err,
		}
	}
	return nil
}
