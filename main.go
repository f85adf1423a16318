// Package main provides the entry point for the piper-speak CLI.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/piper-speak/internal/tts"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile   string
	useClipboard bool

	rootCmd = &cobra.Command{
		Use:   "piper-speak [TEXT...]",
		Short: "Speak text out loud with Piper",
		Long: paragraph(fmt.Sprintf(
			"\nSpeak text out loud with %s, the fast local neural text-to-speech engine.\n\n"+
				"Text comes from the arguments, the clipboard or standard input, one request per line. "+
				"On a terminal without input an interactive prompt starts; type %s to quit.",
			keyword("Piper"), keyword("exit"))),
		Example: paragraph("piper-speak \"Hello world\"\n" +
			"piper-speak -m en_GB-alba-medium.onnx < script.txt\n" +
			"piper-speak --clipboard --markdown"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
		log.Debug("Using configuration file", "path", configFile)
	}
	if useClipboard && cmd.Flags().NArg() > 0 {
		return errors.New("cannot use both --clipboard and text arguments")
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// applyRunFlags lets --no-play and --no-cache switch off what the config
// enables. A false value leaves the config alone.
func applyRunFlags(cmd *cobra.Command, opts *options) error {
	noPlay, err := cmd.Flags().GetBool("no-play")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}

	if noPlay {
		opts.AudioEnabled = false
	}
	if noCache {
		opts.CacheEnabled = false
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	opts, err := loadOptions(viper.GetViper())
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, &opts); err != nil {
		return err
	}

	if result := tts.Validate(opts.Piper); !result.Available {
		fmt.Fprintln(os.Stderr, faint(result.Guidance))
		return result.Error
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipe, err := stdinIsPipe()
	if err != nil {
		return err
	}
	interactive := len(args) == 0 && !useClipboard && !pipe && term.IsTerminal(int(os.Stdin.Fd()))

	// Later lines would cut earlier ones off, so batch input waits for each
	// one to finish playing. The prompt lets new input interrupt.
	ctrl, err := newController(opts, !interactive)
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			log.Debug("Shutdown", "error", err)
		}
	}()

	switch {
	case len(args) > 0:
		err = speakOnce(ctx, ctrl, strings.Join(args, " "))

	case useClipboard:
		text, cerr := clipboard.ReadAll()
		if cerr != nil {
			return fmt.Errorf("unable to read clipboard: %w", cerr)
		}
		err = speakOnce(ctx, ctrl, text)

	default:
		if interactive {
			fmt.Println(paragraph(faint("Type text and press enter to hear it. Type exit to quit.")))
		}
		err = speakLines(ctx, ctrl, os.Stdin, os.Stdout, interactive)
	}
	if err != nil {
		return err
	}

	if opts.Wait && opts.AudioEnabled {
		if err := ctrl.Wait(ctx); err != nil && ctx.Err() == nil {
			return err
		}
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringP("model", "m", "", "voice model (.onnx)")
	rootCmd.Flags().StringP("model-config", "c", "", "voice model config (.onnx.json)")
	rootCmd.Flags().StringP("output", "f", "", "artifact path Piper writes to")
	rootCmd.Flags().String("piper", "", "Piper executable")
	rootCmd.Flags().String("args", "", "extra arguments passed to Piper")
	rootCmd.Flags().Duration("timeout", 0, "maximum time per request (0 waits forever)")
	rootCmd.Flags().String("device", "auto", "audio device: auto, oto or null")
	rootCmd.Flags().Float64("volume", 1.0, "playback volume (0.0 to 1.0)")
	rootCmd.Flags().Bool("markdown", false, "strip markdown formatting before speaking")
	rootCmd.Flags().Bool("no-play", false, "synthesize only, do not play")
	rootCmd.Flags().Bool("no-cache", false, "bypass the artifact cache")
	rootCmd.Flags().BoolVar(&useClipboard, "clipboard", false, "speak the clipboard contents")

	// Config bindings
	_ = viper.BindPFlag("piper.model", rootCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("piper.config", rootCmd.Flags().Lookup("model-config"))
	_ = viper.BindPFlag("piper.output", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("piper.binary", rootCmd.Flags().Lookup("piper"))
	_ = viper.BindPFlag("piper.extra_args", rootCmd.Flags().Lookup("args"))
	_ = viper.BindPFlag("piper.timeout", rootCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("audio.device", rootCmd.Flags().Lookup("device"))
	_ = viper.BindPFlag("audio.volume", rootCmd.Flags().Lookup("volume"))
	_ = viper.BindPFlag("markdown", rootCmd.Flags().Lookup("markdown"))

	setDefaults(viper.GetViper())

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "piper-speak")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "piper-speak")}, dirs...)
	}

	if c := os.Getenv("PIPER_SPEAK_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("piper-speak")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("piper_speak")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], "piper-speak.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
