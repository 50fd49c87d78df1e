package configuration

import (
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGenericProvider struct {
	mock.Mock
}

func (m *mockGenericProvider) Read(filenames ...string) (map[string]string, error) {
	args := m.Called(filenames)

	return args.Get(0).(map[string]string), args.Error(1) //nolint:forcetypeassert
}

func noEnv(string) (string, bool) {
	return "", false
}

func TestLoad_Success_Defaults(t *testing.T) {
	t.Parallel()

	c := NewConfigProvider(afero.NewMemMapFs())
	c.LookupEnv = noEnv

	cfg, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_Success_FilesAndEnvironment(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/etc/posixrt.env", []byte(
		"# runtime\nPOSIXRT_FD_INITIAL=32\nPOSIXRT_STREAM_BUFFER=\"64 KiB\"\nPOSIXRT_LOG_LEVEL=debug\n",
	), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/etc/override.env", []byte("POSIXRT_FD_INITIAL=40\n"), 0o644))

	c := NewConfigProvider(fsys)
	c.LookupEnv = func(key string) (string, bool) {
		if key == KeyNameMax {
			return "64", true
		}

		return "", false
	}

	cfg, err := c.Load("/etc/posixrt.env", "/etc/override.env")
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.FDInitial)
	assert.Equal(t, 20, cfg.FDChunk)
	assert.Equal(t, 64*1024, cfg.StreamBuffer)
	assert.Equal(t, 64, cfg.NameMax)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_Fail_InvalidValues(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		KeyFDInitial:    "many",
		KeyFDChunk:      "0",
		KeyFDMax:        "10",
		KeyStreamBuffer: "lots",
		KeyNameMax:      "-1",
		KeyLogLevel:     "loud",
	}

	for key, value := range tests {
		provider := &mockGenericProvider{}
		provider.On("Read", []string{"x.env"}).Return(map[string]string{key: value}, nil)

		c := &ConfigProviderImpl{GenericConfigReader: provider}

		_, err := c.Load("x.env")
		require.ErrorIs(t, err, ErrInvalidConfig, key)

		provider.AssertExpectations(t)
	}
}

func TestLoad_Fail_MissingFile(t *testing.T) {
	t.Parallel()

	c := NewConfigProvider(afero.NewMemMapFs())
	c.LookupEnv = noEnv

	_, err := c.Load("/nope.env")
	require.Error(t, err)
}

func TestMapKeyToBytes_Success(t *testing.T) {
	t.Parallel()

	c := &ConfigProviderImpl{}
	env := map[string]string{"a": "4096", "b": "1 MiB", "c": " 2k "}

	for key, want := range map[string]int{"a": 4096, "b": 1 << 20, "c": 2000, "d": 7} {
		got, err := c.MapKeyToBytes(env, key, 7)
		require.NoError(t, err, key)
		assert.Equal(t, want, got, key)
	}
}
