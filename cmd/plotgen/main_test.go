package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/plotgen/blobstore"
	"github.com/hupe1980/plotgen/blobstore/minio"
	"github.com/hupe1980/plotgen/blobstore/s3"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "", want: 0},
		{in: "512", want: 512 << 20},
		{in: "64KiB", want: 64 << 10},
		{in: "1GB", want: 1_000_000_000},
		{in: "2 GiB", want: 2 << 30},
		{in: "lots", wantErr: true},
		{in: "99999999999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitBucket(t *testing.T) {
	b, p := splitBucket("/plots/run/a/")
	assert.Equal(t, "plots", b)
	assert.Equal(t, "run/a", p)

	b, p = splitBucket("/plots")
	assert.Equal(t, "plots", b)
	assert.Empty(t, p)
}

func TestNewPublisher(t *testing.T) {
	ctx := context.Background()
	t.Setenv("MINIO_ACCESS_KEY", "access")
	t.Setenv("MINIO_SECRET_KEY", "secret")
	t.Setenv("AWS_REGION", "us-east-1")

	p, err := newPublisher(ctx, "file://"+t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &blobstore.LocalStore{}, p)

	p, err = newPublisher(ctx, "minio://localhost:9000/plots/run?insecure=true")
	require.NoError(t, err)
	assert.IsType(t, &minio.Store{}, p)

	p, err = newPublisher(ctx, "s3://plots/run")
	require.NoError(t, err)
	assert.IsType(t, &s3.Store{}, p)

	for _, raw := range []string{"ftp://host/dir", "minio://localhost:9000", "s3://", "file://"} {
		_, err := newPublisher(ctx, raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("k: 20\nmemory: 1GiB\ntables: 5\nverify: true\nspill_compression: zstd\n"), 0o644))

	s, err := loadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, uint(20), s.K)
	assert.Equal(t, "1GiB", s.Memory)
	assert.Equal(t, 5, s.Tables)
	assert.True(t, s.Verify)
	assert.Equal(t, "zstd", s.SpillCompression)
	// unset keys keep their defaults
	assert.Equal(t, ".", s.Dir)
	assert.Equal(t, "text", s.LogFormat)

	t.Run("unknown key", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("kay: 20\n"), 0o644))
		_, err := loadSettings(bad)
		assert.Error(t, err)
	})

	t.Run("empty file", func(t *testing.T) {
		empty := filepath.Join(t.TempDir(), "empty.yaml")
		require.NoError(t, os.WriteFile(empty, nil, 0o644))
		s, err := loadSettings(empty)
		require.NoError(t, err)
		assert.Equal(t, defaultSettings(), s)
	})
}

func TestOverlay(t *testing.T) {
	base := defaultSettings()
	base.K = 20
	base.Tables = 5

	flags := settings{K: 12, Tables: 3, Verify: true}
	changed := map[string]bool{"k": true, "verify": true}
	base.overlay(flags, func(name string) bool { return changed[name] })

	assert.Equal(t, uint(12), base.K)
	assert.True(t, base.Verify)
	assert.Equal(t, 5, base.Tables)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger("debug", "json", &buf)
	require.NoError(t, err)
	l.Debug("hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = newLogger("loud", "text", &buf)
	assert.Error(t, err)
	_, err = newLogger("info", "xml", &buf)
	assert.Error(t, err)
}

func TestRootCmd(t *testing.T) {
	dir := t.TempDir()
	pub := filepath.Join(dir, "pub")

	cfgPath := filepath.Join(dir, "plot.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("k: 4\ntables: 7\nmemory: 64KiB\n"), 0o644))

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{
		"--config", cfgPath,
		"--tables", "2",
		"--name", "cli",
		"--dir", dir,
		"--verify",
		"--publish", "file://" + pub,
		"--log-level", "error",
	})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.Contains(t, out.String(), "table 0: 16 entries")
	assert.Contains(t, out.String(), "table 1: 16 entries")
	assert.Contains(t, out.String(), "k=4 tables=2")
	assert.FileExists(t, filepath.Join(dir, "table_cli_0.bin"))
	assert.FileExists(t, filepath.Join(pub, "table_cli_1.bin"))
}

func TestRootCmd_InvalidFlags(t *testing.T) {
	tests := map[string][]string{
		"bad memory":      {"-k", "4", "--memory", "lots"},
		"bad compression": {"-k", "4", "--spill-compression", "snappy"},
		"bad k":           {"-k", "0"},
		"positional":      {"extra"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(append(args, "--dir", t.TempDir()))
			assert.Error(t, cmd.ExecuteContext(context.Background()))
		})
	}
}
