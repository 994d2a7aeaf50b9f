package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPage = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div id="card" style="width: 600px; height: 400px; background-color: #ffffff;">hello</div>
</body></html>`

// isolate points config, data and the working directory at a fresh
// directory and disables terminal colour.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("NO_COLOR", "1")
	t.Chdir(dir)
	return dir
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runContext(context.Background(), args...)
}

func runContext(ctx context.Context, args ...string) (string, string, error) {
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func writePage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(path, []byte(testPage), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pagetint version "), out)
}

func TestExplicitConfigMustExist(t *testing.T) {
	dir := isolate(t)
	_, _, err := run(t, "--config", filepath.Join(dir, "missing.yaml"), "version")
	assert.ErrorContains(t, err, "failed to load config file")
}

func TestContrastCommand(t *testing.T) {
	isolate(t)

	out, _, err := run(t, "contrast", "#000", "#fff")
	require.NoError(t, err)
	assert.Contains(t, out, "Contrast: 21.00:1")
	assert.Contains(t, out, "AAA:            pass")
	assert.NotContains(t, out, "Blend")

	out, _, err = run(t, "contrast", "#fff", "#fff", "--target", "#222222")
	require.NoError(t, err)
	assert.Contains(t, out, "Contrast: 1.00:1")
	assert.Contains(t, out, "AA normal text: fail")
	assert.Contains(t, out, "Blend: #ffffff -> #383838")
	assert.Contains(t, out, "Weight: 0.90 (initial 0.90, 0 decay step(s))")

	out, _, err = run(t, "contrast", "#fff", "#101010", "--target", "#222222")
	require.NoError(t, err)
	assert.Contains(t, out, "Blend: none (initial weight 0.00")

	_, _, err = run(t, "contrast", "#fff", "nope")
	assert.ErrorContains(t, err, `invalid colour "nope"`)
}

func TestRulesCommands(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			isolate(t)
			flags := []string{"--store-backend", backend}
			rules := func(args ...string) string {
				t.Helper()
				out, _, err := run(t, append(append([]string{"rules"}, args...), flags...)...)
				require.NoError(t, err)
				return out
			}

			assert.Contains(t, rules("list"), "No domain rules.")
			assert.Equal(t, "example.com: #AABBCC (enabled)\n", rules("set", "example.com", "abc"))
			assert.Equal(t, "other.test: #FFFFFF (disabled)\n", rules("set", "other.test", "bogus", "--disabled"))
			assert.Equal(t, "Default colour: #112233\n", rules("default", "#123"))

			list := rules("list")
			assert.Contains(t, list, "Default colour: #112233")
			assert.Regexp(t, `example\.com\s+#AABBCC\s+enabled`, list)
			assert.Regexp(t, `other\.test\s+#FFFFFF\s+disabled`, list)
			assert.Less(t, strings.Index(list, "example.com"), strings.Index(list, "other.test"))

			assert.Equal(t, "Removed example.com\n", rules("rm", "example.com"))
			assert.NotContains(t, rules("list"), "example.com")
		})
	}
}

func TestStoreDirFlag(t *testing.T) {
	dir := isolate(t)
	storeDir := filepath.Join(dir, "elsewhere")

	_, _, err := run(t, "--store-dir", storeDir, "rules", "set", "example.com", "#222222")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(storeDir, "sync.json"))
	assert.NoDirExists(t, filepath.Join(dir, "data", "pagetint"))
}

func TestSiteCommands(t *testing.T) {
	isolate(t)

	out, _, err := run(t, "site", "set", "example.com", "#222222")
	require.NoError(t, err)
	assert.Equal(t, "example.com: color theme saved\n", out)

	out, _, err = run(t, "css", "example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "html,body{background:#222222 !important;}")

	out, _, err = run(t, "site", "show", "example.com")
	require.NoError(t, err)
	assert.Contains(t, out, `"color": "#222222"`)
	assert.Contains(t, out, `"mode": "color"`)

	_, _, err = run(t, "site", "set", "grad.test", `{"mode":"gradient","gradient":{"type":"radial"}}`)
	require.NoError(t, err)
	out, _, err = run(t, "css", "grad.test")
	require.NoError(t, err)
	assert.Contains(t, out, "radial-gradient(circle at center, #f4f4f5, #e5e7eb)")

	_, _, err = run(t, "site", "set", "off.test", `{"enabled":false}`)
	require.NoError(t, err)
	_, _, err = run(t, "css", "off.test")
	assert.ErrorContains(t, err, "theme for off.test is disabled")

	_, _, err = run(t, "site", "set", "bad.test", "not-a-colour")
	assert.ErrorContains(t, err, "invalid colour")
	_, _, err = run(t, "site", "set", "bad.test", `{"enabled":"yes"}`)
	assert.ErrorContains(t, err, "invalid theme")

	_, _, err = run(t, "site", "set", "https://bad.test", "#222")
	assert.ErrorContains(t, err, "invalid host")
	_, _, err = run(t, "site", "set", "img.test", `{"mode":"image","image":{"url":"javascript:alert(1)"}}`)
	assert.ErrorContains(t, err, "invalid image URL protocol")

	out, _, err = run(t, "site", "set", "Example.COM", "#333333")
	require.NoError(t, err)
	assert.Equal(t, "example.com: color theme saved\n", out)

	_, _, err = run(t, "site", "rm", "example.com")
	require.NoError(t, err)
	_, _, err = run(t, "css", "example.com")
	assert.ErrorContains(t, err, "no theme stored for example.com")
}

func TestApplyColor(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)

	out, _, err := run(t, "apply", "--color", "#222222", page)
	require.NoError(t, err)
	assert.Contains(t, out, `<style id="cbx-style">`)
	assert.Contains(t, out, "html,body{background:#222222 !important;}")
	assert.Contains(t, out, "background-color: rgba(")
	assert.NotContains(t, out, "background-color: #ffffff")
}

func TestApplyStoredThemeWithReport(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)
	output := filepath.Join(dir, "out", "themed.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(output), 0o755))

	_, _, err := run(t, "site", "set", "example.com", "#303a4a")
	require.NoError(t, err)

	out, _, err := run(t, "apply", "--host", "example.com", "--report", "-o", output, page)
	require.NoError(t, err)
	assert.Regexp(t, `div#card\s+#ffffff\s+#[0-9a-f]{6}\s+0\.\d\d`, out)
	assert.Contains(t, out, "1 override(s)")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#303a4a")

	entries, err := os.ReadDir(filepath.Dir(output))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestApplyUnknownHostLeavesPage(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)

	out, stderr, err := run(t, "apply", "--host", "nowhere.test", "--report", page)
	require.NoError(t, err)
	assert.NotContains(t, out, "cbx-style")
	assert.Contains(t, out, "background-color: #ffffff")
	assert.Contains(t, stderr, "No backgrounds changed.")
}

func TestApplyErrors(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)

	_, _, err := run(t, "apply", page)
	assert.ErrorContains(t, err, "one of --host or --color is required")

	_, _, err = run(t, "apply", "--color", "#222", "--width", "0", page)
	assert.ErrorContains(t, err, "viewport must be positive")

	_, _, err = run(t, "apply", "--color", "#222", filepath.Join(dir, "missing.html"))
	assert.ErrorContains(t, err, "failed to read page")

	_, _, err = run(t, "apply", "--color", "#222", "--batch-size", "0", page)
	assert.ErrorContains(t, err, "blend.batch_size must be at least 1")

	_, _, err = run(t, "apply", "--color", "#222", "--batch-size", "1", page)
	assert.NoError(t, err)
}

func TestWatchRequiresOutput(t *testing.T) {
	dir := isolate(t)
	_, _, err := run(t, "watch", "--color", "#222", writePage(t, dir))
	assert.ErrorContains(t, err, "watch requires --output")
}

func TestWatchRethemesOnStoreChange(t *testing.T) {
	dir := isolate(t)
	page := writePage(t, dir)
	output := filepath.Join(dir, "themed.html")

	_, _, err := run(t, "site", "set", "example.com", "#303a4a")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := runContext(ctx, "watch", "--host", "example.com", "--debounce", "20ms", "-o", output, page)
		done <- err
	}()

	waitFor := func(want string) {
		t.Helper()
		require.Eventually(t, func() bool {
			data, err := os.ReadFile(output)
			return err == nil && strings.Contains(string(data), want)
		}, 5*time.Second, 20*time.Millisecond, "output never contained %q", want)
	}

	waitFor("#303a4a")

	_, _, err = run(t, "site", "set", "example.com", "#5b2a86")
	require.NoError(t, err)
	waitFor("#5b2a86")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
