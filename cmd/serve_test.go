// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"testing"
	"time"

	"github.com/qiaobaojoe/house-file-courier/pkg/progress"
	"github.com/qiaobaojoe/house-file-courier/pkg/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newServeTestCmd returns a fresh command with the serve flags bound to a
// clean viper state. Tests using it must not run in parallel.
func newServeTestCmd(t *testing.T) *cobra.Command {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	c := &cobra.Command{Use: "serve"}
	addServeFlags(c.Flags())
	require.NoError(t, viper.BindPFlags(c.Flags()))
	return c
}

func TestLoadServeOpts_Defaults(t *testing.T) {
	c := newServeTestCmd(t)

	opts, err := loadServeOpts(c)
	require.NoError(t, err)

	assert.Equal(t, 3000, opts.HTTPPort)
	assert.Equal(t, "uploads", opts.UploadDir)
	assert.Equal(t, progress.KindFile, opts.ProgressBackend)
	assert.Equal(t, int64(100<<20), opts.MaxChunkSize)
	assert.Zero(t, opts.MaxUploadSize)
	assert.Nil(t, opts.MinFreeSpace)
	assert.Equal(t, 10*time.Second, opts.ShutdownTimeout)
	assert.Equal(t, "courier:progress", opts.Redis.KeyPrefix)
	assert.False(t, opts.Notify.HasExternalPublishers())
	assert.Equal(t, opts.StagingDir, progressDir(opts))
}

func TestLoadServeOpts_FlagBeatsConfig(t *testing.T) {
	c := newServeTestCmd(t)

	viper.Set("http_port", 8080)
	viper.Set("max_chunk_size", "1MiB")
	require.NoError(t, c.Flags().Set("http_port", "9090"))
	require.NoError(t, c.Flags().Set("min_free_space", "5%"))
	require.NoError(t, c.Flags().Set("kafka.enabled", "true"))
	require.NoError(t, c.Flags().Set("kafka.brokers", "k1:9092,k2:9092"))

	opts, err := loadServeOpts(c)
	require.NoError(t, err)

	assert.Equal(t, 9090, opts.HTTPPort)
	assert.Equal(t, int64(1<<20), opts.MaxChunkSize)
	require.NotNil(t, opts.MinFreeSpace)
	assert.Equal(t, utils.AsPercent, opts.MinFreeSpace.Type)
	assert.True(t, opts.Notify.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, opts.Notify.Kafka.Brokers)
}

func TestLoadServeOpts_LevelDB(t *testing.T) {
	c := newServeTestCmd(t)
	dir := t.TempDir()
	require.NoError(t, c.Flags().Set("progress_backend", "leveldb"))
	require.NoError(t, c.Flags().Set("leveldb_path", dir))

	opts, err := loadServeOpts(c)
	require.NoError(t, err)
	assert.Equal(t, dir, progressDir(opts))
}

func TestLoadServeOpts_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]string
	}{
		{"bad chunk size", map[string]string{"max_chunk_size": "huge"}},
		{"bad free space", map[string]string{"min_free_space": "plenty"}},
		{"unknown backend", map[string]string{"progress_backend": "etcd"}},
		{"staging equals uploads", map[string]string{"upload_dir": "files", "staging_dir": "files"}},
		{"leveldb without path", map[string]string{"progress_backend": "leveldb", "leveldb_path": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServeTestCmd(t)
			for k, v := range tt.flags {
				require.NoError(t, c.Flags().Set(k, v))
			}
			_, err := loadServeOpts(c)
			assert.Error(t, err)
		})
	}
}

func TestFlagLoader_Bytes(t *testing.T) {
	c := newServeTestCmd(t)
	f := NewFlagLoader(c)

	require.NoError(t, c.Flags().Set("max_upload_size", "2 GB"))
	n, err := f.Bytes("max_upload_size")
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000_000), n)

	viper.Set("min_free_space", "")
	n, err = f.Bytes("min_free_space")
	require.NoError(t, err)
	assert.Zero(t, n)
}
