package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"image-converter/internal/codec"
	"image-converter/internal/config"
	"image-converter/internal/conversion"
	"image-converter/internal/logging"
	"image-converter/internal/model"
)

// errReported marks failures that were already shown to the user.
var errReported = errors.New("conversion failed")

type options struct {
	configPath  string
	input       string
	output      string
	chunkSize   int
	chunkDelay  time.Duration
	compression string
	verify      bool
	logLevel    string
	logFormat   string
	logFile     string
	dir         string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "image-converter",
		Short: "Convert images to PNG",
		Long: `Convert an image (PNG, JPEG, GIF, BMP, TIFF or WebP) to PNG.

With --input and --output the conversion runs directly and reports progress
on the console. Without them an interactive screen lets you pick both files.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			switch {
			case opts.input != "" && opts.output != "":
				return runHeadless(cmd.Context(), cfg, model.Handle(opts.input), model.Handle(opts.output), cmd.ErrOrStderr())
			case opts.input != "" || opts.output != "":
				return fmt.Errorf("--input and --output must be given together")
			default:
				return runScreen(cfg)
			}
		},
	}

	bindFlags(cmd, opts)
	return cmd
}

func bindFlags(cmd *cobra.Command, opts *options) {
	defaults := config.Default()
	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file")
	flags.StringVarP(&opts.input, "input", "i", "", "image to convert (runs without the interactive screen)")
	flags.StringVarP(&opts.output, "output", "o", "", "PNG file to write")
	flags.IntVar(&opts.chunkSize, "chunk-size", defaults.Conversion.ChunkSize, "bytes read per progress step")
	flags.DurationVar(&opts.chunkDelay, "chunk-delay", defaults.Conversion.ChunkDelay, "pause after each chunk")
	flags.StringVar(&opts.compression, "compression", defaults.Conversion.Compression, "png compression: default, none, speed or best")
	flags.BoolVar(&opts.verify, "verify", defaults.Conversion.Verify, "compare the written PNG with the source image")
	flags.StringVar(&opts.logLevel, "log-level", defaults.Log.Level, "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", defaults.Log.Format, "log format: console or json")
	flags.StringVar(&opts.logFile, "log-file", "", "append logs to this file")
	flags.StringVar(&opts.dir, "dir", defaults.StartDir, "directory the input picker starts in")
}

// loadConfig layers explicitly set flags over the file and environment.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		cfg.Conversion.ChunkSize = opts.chunkSize
	}
	if flags.Changed("chunk-delay") {
		cfg.Conversion.ChunkDelay = opts.chunkDelay
	}
	if flags.Changed("compression") {
		cfg.Conversion.Compression = opts.compression
	}
	if flags.Changed("verify") {
		cfg.Conversion.Verify = opts.verify
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = opts.logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = opts.logFile
	}
	if flags.Changed("dir") {
		cfg.StartDir = opts.dir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger opens the configured log destination. fallback is used when no
// log file is set; it is shared with the progress bar, so only errors are
// written there. The returned closer releases the file.
func newLogger(cfg *config.Config, fallback io.Writer) (*logging.Logger, func(), error) {
	if cfg.Log.File == "" {
		if fallback == nil {
			return logging.Discard(), func() {}, nil
		}
		level := cfg.Log.Level
		if logging.ParseLevel(level) < logging.ParseLevel("error") {
			level = "error"
		}
		return logging.New(logging.Options{Level: level, Format: cfg.Log.Format, Output: fallback}), func() {}, nil
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: f})
	return logger, func() { _ = f.Close() }, nil
}

func newEngine(cfg *config.Config, logger *logging.Logger) (*conversion.Engine, error) {
	level, err := codec.ParseCompression(cfg.Conversion.Compression)
	if err != nil {
		return nil, err
	}
	return conversion.New(conversion.Options{
		ChunkSize:  cfg.Conversion.ChunkSize,
		ChunkDelay: cfg.Conversion.ChunkDelay,
		Codec:      codec.NewPNG(level),
		Verify:     cfg.Conversion.Verify,
		Logger:     logger,
	}), nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
