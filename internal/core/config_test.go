package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/AutoFollow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
browser:
  headless: false
  max_retries: 5
  base_url: "https://social.test"
  headers:
    Accept-Language: "ru-RU"
run:
  mode: list_driven
  action: unfollow
  delay_min: 5s
  delay_max: 9s
  targets: ["@Alice", "https://social.test/bob/"]
  ignore: ["Carol"]
pagination:
  max_idle_rounds: 10
executor:
  confirm_timeout: 2s
list_driven:
  profile_url_template: "https://social.test/%s/"
logging:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "run:\n  target_count: 7\n"))
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 3, cfg.Browser.MaxRetries)
	assert.Equal(t, 7, cfg.Run.TargetCount)
	assert.Equal(t, string(models.ModeBulkVisible), cfg.Run.Mode)
	assert.Equal(t, 20*time.Second, cfg.Run.DelayMin)
	assert.Equal(t, 22, cfg.Pagination.MaxIdleRounds)
	assert.Equal(t, 6*time.Second, cfg.Executor.ConfirmTimeout)
	assert.Equal(t, "127.0.0.1:7878", cfg.Control.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfig_File(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 5, cfg.Browser.MaxRetries)
	assert.Equal(t, "https://social.test", cfg.Browser.BaseURL)
	assert.Equal(t, "ru-RU", cfg.Browser.Headers["accept-language"])
	assert.Equal(t, 10, cfg.Pagination.MaxIdleRounds)
	assert.Equal(t, 2*time.Second, cfg.Executor.ConfirmTimeout)
	assert.Equal(t, "debug", cfg.LogConfig().Level)

	run, err := cfg.RunConfig()
	require.NoError(t, err)
	assert.Equal(t, models.ModeListDriven, run.Mode)
	assert.Equal(t, models.ActionUnfollow, run.Action)
	assert.Equal(t, []string{"alice", "bob"}, run.Targets)
	assert.Equal(t, []string{"carol"}, run.Ignore)
	assert.Equal(t, 2, run.TargetCount)
	assert.Equal(t, models.Duration(5*time.Second), run.DelayMin)

	settings := cfg.Settings()
	assert.Equal(t, "https://social.test/%s/", settings.ListDriven.ProfileURLTemplate)
	assert.Equal(t, "https://social.test", settings.BaseURL)
}

func TestLoadConfig_Malformed(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "run: [unclosed"))
	require.Error(t, err)

	var cfgErr *models.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRunConfig_TargetsFile(t *testing.T) {
	dir := t.TempDir()
	targets := filepath.Join(dir, "targets.txt")
	require.NoError(t, os.WriteFile(targets, []byte("# 目标\nalice\n@bob\nalice\n"), 0o644))

	cfg, err := LoadConfig(writeConfig(t, "run:\n  mode: list_driven\n  targets: [dave]\n"))
	require.NoError(t, err)
	cfg.Run.TargetsFile = targets

	run, err := cfg.RunConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"dave", "alice", "bob"}, run.Targets)
	assert.Equal(t, 3, run.TargetCount)
}

func TestRunConfig_Invalid(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "run:\n  mode: list_driven\n"))
	require.NoError(t, err)

	_, err = cfg.RunConfig()
	assert.Error(t, err, "列表模式没有目标时应报错")

	cfg.Run.Targets = []string{"bad handle!"}
	_, err = cfg.RunConfig()
	assert.Error(t, err)
}

func TestMergeCLIFlags(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	headless := true
	cfg.MergeCLIFlags(CLIFlags{
		Mode:        string(models.ModeBulkVisible),
		TargetCount: 4,
		DelayMax:    12 * time.Second,
		NameFilter:  string(models.NameRequired),
		Headless:    &headless,
		StorageDir:  "/tmp/af",
	})

	assert.Equal(t, string(models.ModeBulkVisible), cfg.Run.Mode)
	assert.Equal(t, string(models.ActionUnfollow), cfg.Run.Action, "未指定的参数保留配置文件的值")
	assert.Equal(t, 4, cfg.Run.TargetCount)
	assert.Equal(t, 5*time.Second, cfg.Run.DelayMin)
	assert.Equal(t, 12*time.Second, cfg.Run.DelayMax)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "/tmp/af", cfg.Storage.Dir)

	run, err := cfg.RunConfig()
	require.NoError(t, err)
	assert.Equal(t, models.NameRequired, run.NameFilter)
	assert.Equal(t, 4, run.TargetCount)
}
