package adapter

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostKeepsOneInstancePerApp(t *testing.T) {
	root := t.TempDir()
	installApp(t, root, "dex", `{"app_id":"dex","type":"webapp","main_page":"index.html"}`,
		map[string]string{"index.html": dexPage})
	installApp(t, root, "shop", `{"app_id":"shop","type":"webapp","main_page":"main.js"}`,
		map[string]string{"main.js": `var outcome = "ready";`})

	host := NewHost(HostOptions{AppsDir: root, Router: &stubRouter{}})
	defer host.CloseAll()

	var wg sync.WaitGroup
	apps := make([]*WebApp, 4)
	for i := range apps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			app, _, err := host.Open(context.Background(), "dex")
			assert.NoError(t, err)
			apps[i] = app
		}(i)
	}
	wg.Wait()
	for _, app := range apps[1:] {
		assert.Same(t, apps[0], app)
	}

	shop, created, err := host.Open(context.Background(), "shop")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"dex", "shop"}, host.List())

	got, ok := host.Get("shop")
	require.True(t, ok)
	assert.Same(t, shop, got)

	assert.True(t, host.Close("shop"))
	assert.False(t, host.Close("shop"))
	assert.Equal(t, []string{"dex"}, host.List())
}

func TestHostCloseAllRejectsLaterOpens(t *testing.T) {
	root := t.TempDir()
	installApp(t, root, "shop", `{"app_id":"shop","type":"webapp","main_page":"main.js"}`,
		map[string]string{"main.js": `var outcome = "ready";`})

	host := NewHost(HostOptions{AppsDir: root, Router: &stubRouter{}})
	_, _, err := host.Open(context.Background(), "shop")
	require.NoError(t, err)

	host.CloseAll()
	assert.Empty(t, host.List())

	_, _, err = host.Open(context.Background(), "shop")
	assert.ErrorIs(t, err, ErrHostClosed)
	assert.NotPanics(t, host.CloseAll)
}

func TestHostOpenFailureIsNotCached(t *testing.T) {
	root := t.TempDir()
	installApp(t, root, "eth", `{"app_id":"eth","type":"blockchain"}`, map[string]string{"index.html": "<p></p>"})

	host := NewHost(HostOptions{AppsDir: root, Router: &stubRouter{}})
	defer host.CloseAll()

	_, _, err := host.Open(context.Background(), "eth")
	assert.ErrorIs(t, err, ErrNotWebApp)
	_, ok := host.Get("eth")
	assert.False(t, ok)
}
