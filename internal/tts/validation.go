package tts

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/dgnsrekt/piper-speak/internal/piper"
)

// ValidationResult contains the result of engine validation
type ValidationResult struct {
	// Available indicates if the engine is available and configured
	Available bool

	// Error contains any validation error
	Error error

	// Guidance provides setup instructions if validation failed
	Guidance string

	// Details contains additional validation information
	Details map[string]string
}

// ResolveConfigPath returns configPath, or the voice config Piper ships next
// to the model (model.onnx.json) when configPath is empty.
func ResolveConfigPath(modelPath, configPath string) string {
	if configPath != "" || modelPath == "" {
		return configPath
	}
	candidate := modelPath + ".json"
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// Validate checks that cfg names an executable Piper binary and a readable
// model before anything is spawned.
func Validate(cfg piper.Config) *ValidationResult {
	result := &ValidationResult{Details: make(map[string]string)}

	if cfg.Binary == "" {
		result.Error = ErrBinaryNotFound
		result.Guidance = buildPiperInstallGuidance()
		return result
	}
	binary, err := exec.LookPath(cfg.Binary)
	if err != nil {
		result.Error = fmt.Errorf("%w: %w", ErrBinaryNotFound, err)
		result.Guidance = buildPiperInstallGuidance()
		return result
	}
	result.Details["binary_path"] = binary

	if cfg.ModelPath == "" {
		result.Error = ErrModelNotConfigured
		result.Guidance = buildPiperModelGuidance()
		return result
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		result.Error = fmt.Errorf("model file not accessible: %w", err)
		result.Guidance = buildPiperModelGuidance()
		return result
	}
	result.Details["model_path"] = cfg.ModelPath

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			result.Error = fmt.Errorf("model config not accessible: %w", err)
			result.Guidance = "Check piper.config in your config file, or leave it empty to use " +
				strings.TrimSpace(cfg.ModelPath) + ".json"
			return result
		}
		result.Details["config_path"] = cfg.ConfigPath
	}

	result.Available = true
	return result
}

// buildPiperInstallGuidance provides instructions for installing Piper
func buildPiperInstallGuidance() string {
	return `Piper TTS is not installed. To install:

1. Download Piper binary from: https://github.com/rhasspy/piper/releases
2. Extract it and either add it to PATH or set piper.binary in your config:

   wget https://github.com/rhasspy/piper/releases/latest/download/piper_linux_x86_64.tar.gz
   tar -xzf piper_linux_x86_64.tar.gz

3. Download a voice model from: https://github.com/rhasspy/piper/blob/master/VOICES.md`
}

// buildPiperModelGuidance provides instructions for configuring Piper models
func buildPiperModelGuidance() string {
	return `Piper model path not configured. To configure:

1. Download a voice model from: https://github.com/rhasspy/piper/blob/master/VOICES.md

   Example (English, Alba voice):
   mkdir -p ~/.local/share/piper/models
   cd ~/.local/share/piper/models
   wget https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0/en/en_GB/alba/medium/en_GB-alba-medium.onnx
   wget https://huggingface.co/rhasspy/piper-voices/resolve/v1.0.0/en/en_GB/alba/medium/en_GB-alba-medium.onnx.json

2. Set the model in your config (piper-speak config) or pass --model:
   piper:
     model: ~/.local/share/piper/models/en_GB-alba-medium.onnx`
}
