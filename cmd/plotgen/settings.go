package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/plotgen"
	"github.com/hupe1980/plotgen/blobstore"
	"github.com/hupe1980/plotgen/blobstore/minio"
	"github.com/hupe1980/plotgen/blobstore/s3"
)

const defaultMemory = "256MiB"

// settings holds every knob of a run as the CLI and the YAML file spell them.
type settings struct {
	K                uint   `yaml:"k"`
	Memory           string `yaml:"memory"`
	Tables           int    `yaml:"tables"`
	Name             string `yaml:"name"`
	Dir              string `yaml:"dir"`
	Verify           bool   `yaml:"verify"`
	Workers          int    `yaml:"workers"`
	SpillCompression string `yaml:"spill_compression"`
	IOLimit          string `yaml:"io_limit"`
	Publish          string `yaml:"publish"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
}

func defaultSettings() settings {
	return settings{
		Memory:           defaultMemory,
		Tables:           plotgen.DefaultTableCount,
		Dir:              ".",
		SpillCompression: "none",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// loadSettings reads a YAML file on top of the defaults.
func loadSettings(path string) (settings, error) {
	s := defaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return s, fmt.Errorf("parse config %s: %w", path, err)
	}
	return s, nil
}

// overlay copies every flag the user set explicitly.
func (s *settings) overlay(f settings, changed func(string) bool) {
	if changed("k") {
		s.K = f.K
	}
	if changed("memory") {
		s.Memory = f.Memory
	}
	if changed("tables") {
		s.Tables = f.Tables
	}
	if changed("name") {
		s.Name = f.Name
	}
	if changed("dir") {
		s.Dir = f.Dir
	}
	if changed("verify") {
		s.Verify = f.Verify
	}
	if changed("workers") {
		s.Workers = f.Workers
	}
	if changed("spill-compression") {
		s.SpillCompression = f.SpillCompression
	}
	if changed("io-limit") {
		s.IOLimit = f.IOLimit
	}
	if changed("publish") {
		s.Publish = f.Publish
	}
	if changed("log-level") {
		s.LogLevel = f.LogLevel
	}
	if changed("log-format") {
		s.LogFormat = f.LogFormat
	}
}

// parseSize parses a byte size. A bare number is taken as MiB.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		if n > (1<<63-1)>>20 {
			return 0, fmt.Errorf("size %q is too large", s)
		}
		return int64(n) << 20, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n > 1<<63-1 {
		return 0, fmt.Errorf("size %q is too large", s)
	}
	return int64(n), nil
}

func newLogger(level, format string, w io.Writer) (*plotgen.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return plotgen.NewLogger(slog.NewTextHandler(w, opts)), nil
	case "json":
		return plotgen.NewLogger(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// newPublisher builds a blobstore from a publish URL:
//
//	file:///abs/dir or file://rel/dir
//	minio://endpoint/bucket/prefix[?insecure=true]  (credentials from MINIO_* env)
//	s3://bucket/prefix                               (AWS default credential chain)
func newPublisher(ctx context.Context, raw string) (blobstore.Publisher, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid publish url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "file":
		dir := u.Host + u.Path
		if dir == "" {
			return nil, fmt.Errorf("publish url %q has no directory", raw)
		}
		return blobstore.NewLocalStore(dir), nil

	case "minio":
		bucket, prefix := splitBucket(u.Path)
		if u.Host == "" || bucket == "" {
			return nil, fmt.Errorf("publish url %q needs minio://endpoint/bucket[/prefix]", raw)
		}
		client, err := miniogo.New(u.Host, &miniogo.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: u.Query().Get("insecure") != "true",
		})
		if err != nil {
			return nil, fmt.Errorf("minio client: %w", err)
		}
		return minio.NewStore(client, bucket, prefix), nil

	case "s3":
		if u.Host == "" {
			return nil, fmt.Errorf("publish url %q needs s3://bucket[/prefix]", raw)
		}
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		prefix := strings.Trim(u.Path, "/")
		return s3.NewStore(awss3.NewFromConfig(awsCfg), u.Host, prefix, s3.DefaultUploadConfig()), nil

	default:
		return nil, fmt.Errorf("unsupported publish scheme %q", u.Scheme)
	}
}

// splitBucket splits "/bucket/some/prefix" into "bucket" and "some/prefix".
func splitBucket(p string) (bucket, prefix string) {
	p = strings.TrimPrefix(p, "/")
	bucket, prefix, _ = strings.Cut(p, "/")
	return bucket, strings.Trim(prefix, "/")
}

// build turns the settings into a plotgen configuration.
func (s settings) build(ctx context.Context, logOut io.Writer) (plotgen.Config, []plotgen.Option, error) {
	memory, err := parseSize(s.Memory)
	if err != nil {
		return plotgen.Config{}, nil, fmt.Errorf("memory: %w", err)
	}
	ioLimit, err := parseSize(s.IOLimit)
	if err != nil {
		return plotgen.Config{}, nil, fmt.Errorf("io-limit: %w", err)
	}
	compression, err := plotgen.ParseCompression(s.SpillCompression)
	if err != nil {
		return plotgen.Config{}, nil, err
	}
	logger, err := newLogger(s.LogLevel, s.LogFormat, logOut)
	if err != nil {
		return plotgen.Config{}, nil, err
	}

	cfg := plotgen.Config{
		K:             s.K,
		MemoryCeiling: memory,
		TableCount:    s.Tables,
		RunName:       s.Name,
		Dir:           s.Dir,
		Verify:        s.Verify,
	}
	opts := []plotgen.Option{
		plotgen.WithLogger(logger),
		plotgen.WithWorkers(s.Workers),
		plotgen.WithSpillCompression(compression),
		plotgen.WithIOLimit(ioLimit),
	}
	if s.Publish != "" {
		pub, err := newPublisher(ctx, s.Publish)
		if err != nil {
			return plotgen.Config{}, nil, err
		}
		opts = append(opts, plotgen.WithPublisher(pub, 0))
	}
	return cfg, opts, nil
}
