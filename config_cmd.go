package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# Piper engine
piper:
  # Piper executable; found on PATH or in ./piper when empty
  binary: ""
  # voice model (.onnx)
  model: ""
  # model config (.onnx.json); defaults to <model>.json when empty
  config: ""
  # where Piper writes each artifact; a per-process temp file when empty
  output: ""
  # extra arguments passed to Piper, e.g. "--speaker 2 --length_scale 1.1"
  extra_args: ""
  # stderr phrase that marks a finished artifact
  sentinel: "Real-time"
  # maximum time per request, 0 waits forever
  timeout: "0s"

# Audio playback
audio:
  enabled: true
  # auto, oto or null
  device: "auto"
  # output sample rate (44100 or 48000)
  sample_rate: 44100
  # volume level (0.0 to 1.0)
  volume: 1.0
  # wait for playback to finish before exiting
  wait: true

# Artifact cache
cache:
  enabled: true
  # defaults to the user cache directory when empty
  dir: ""
  # maximum size in MB
  max_size: 256
  # drop artifacts older than this, 0 keeps them
  max_age: "720h"

# strip markdown before speaking
markdown: false
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the piper-speak config file",
	Long:    paragraph(fmt.Sprintf("\n%s the piper-speak config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("piper-speak config\npiper-speak config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("piper-speak", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
