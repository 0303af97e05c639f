package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServerOptions struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type testOptions struct {
	Server *testServerOptions `mapstructure:"server"`
	Tags   []string           `mapstructure:"tags"`

	completed bool
	invalid   bool
}

func newTestOptions() *testOptions {
	return &testOptions{Server: &testServerOptions{Addr: ":8100", Timeout: time.Second}}
}

func (o *testOptions) Flags() (fss NamedFlagSets) {
	fs := fss.FlagSet("server")
	fs.StringVar(&o.Server.Addr, "server.addr", o.Server.Addr, "Listen address.")
	fs.DurationVar(&o.Server.Timeout, "server.timeout", o.Server.Timeout, "Timeout.")
	fss.FlagSet("misc").StringSliceVar(&o.Tags, "tags", o.Tags, "Tags.")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	if o.invalid {
		return errors.New("invalid options")
	}
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "svc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runApp(t *testing.T, opts *testOptions, args ...string) error {
	t.Helper()
	a := NewApp(
		WithName("svc-test"),
		WithOptions(opts),
		WithNoVersion(),
		WithSilence(),
		WithRunFunc(func() error { return nil }),
	)
	a.Command().SetArgs(args)
	a.Command().SetOut(&bytes.Buffer{})
	return a.Command().Execute()
}

func TestApp_ConfigFile(t *testing.T) {
	t.Setenv("SVC_TEST_PORT", "9200")
	path := writeConfig(t, "server:\n  addr: \":${SVC_TEST_PORT}\"\n  timeout: 5s\ntags: [a, b]\n")

	opts := newTestOptions()
	require.NoError(t, runApp(t, opts, "-c", path))

	assert.Equal(t, ":9200", opts.Server.Addr)
	assert.Equal(t, 5*time.Second, opts.Server.Timeout)
	assert.Equal(t, []string{"a", "b"}, opts.Tags)
	assert.True(t, opts.completed)
}

func TestApp_FlagsOverrideConfig(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9000\"\n  timeout: 5s\n")

	opts := newTestOptions()
	require.NoError(t, runApp(t, opts, "-c", path, "--server.addr", ":9999", "--tags", "x,y"))

	assert.Equal(t, ":9999", opts.Server.Addr)
	assert.Equal(t, 5*time.Second, opts.Server.Timeout)
	assert.Equal(t, []string{"x", "y"}, opts.Tags)
}

func TestApp_MissingExplicitConfig(t *testing.T) {
	err := runApp(t, newTestOptions(), "-c", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestApp_ValidateFails(t *testing.T) {
	opts := newTestOptions()
	opts.invalid = true
	err := runApp(t, opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid options")
}

func TestEnvPrefix(t *testing.T) {
	assert.Equal(t, "SENTINEL_RAG", EnvPrefix("sentinel-rag"))
}

func TestNamedFlagSets(t *testing.T) {
	var fss NamedFlagSets
	fss.FlagSet("b").String("b.one", "", "first")
	fss.FlagSet("a").String("a.one", "", "second")
	fss.FlagSet("b").String("b.two", "", "third")

	assert.Equal(t, []string{"b", "a"}, fss.Order)

	var buf bytes.Buffer
	PrintSections(&buf, fss, 0)
	out := buf.String()
	assert.Contains(t, out, "B flags:")
	assert.Contains(t, out, "--b.two")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("B flags:")), bytes.Index(buf.Bytes(), []byte("A flags:")))
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, isSensitive("redis.password"))
	assert.True(t, isSensitive("llm.api-key"))
	assert.True(t, isSensitive("auth.key"))
	assert.False(t, isSensitive("cache.key-prefix"))

	fs := pflag.NewFlagSet("t", pflag.ContinueOnError)
	fs.String("auth.key", "secret", "")
	assert.NotPanics(t, func() { logFlags(fs) })
}
