package target

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		config  Config
		wantErr string
	}{
		{"webhook", TypeWebhook, Config{"url": "https://hooks.example.com/x"}, ""},
		{"wordpress", TypeWordPress, Config{"url": "http://blog.example.com", "username": "ed", "app_password": "pw"}, ""},
		{"facebook", TypeFacebook, Config{"page_id": "1", "access_token": "tok"}, ""},
		{"linkedin", TypeLinkedIn, Config{"organization_id": "9", "access_token": "tok"}, ""},
		{"missing type", "", Config{"url": "https://x.example.com"}, "type is required"},
		{"unknown type", "mastodon", Config{"url": "https://x.example.com"}, `unsupported type "mastodon"`},
		{"nil config", TypeWebhook, nil, "config is required"},
		{"missing key", TypeFacebook, Config{"page_id": "1"}, `facebook config requires "access_token"`},
		{"blank key", TypeLinkedIn, Config{"organization_id": "  ", "access_token": "tok"}, `requires "organization_id"`},
		{"non string key", TypeWebhook, Config{"url": 42}, `requires "url"`},
		{"bad scheme", TypeWebhook, Config{"url": "ftp://files.example.com"}, "scheme must be http or https"},
		{"no host", TypeWebhook, Config{"url": "https://"}, "host is required"},
		{"embedded credentials", TypeWordPress, Config{"url": "https://u:p@blog.example.com", "username": "u", "app_password": "p"}, "credentials must not be embedded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg, err := New("target-1", "dom-1", tt.typ, tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTarget)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, tg.Enabled())
			assert.Equal(t, tt.typ, tg.Type())
		})
	}
}

func TestNew_RequiresIdentity(t *testing.T) {
	_, err := New("", "dom-1", TypeWebhook, Config{"url": "https://x.example.com"})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = New("target-1", " ", TypeWebhook, Config{"url": "https://x.example.com"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestTarget_ConfigIsolation(t *testing.T) {
	input := Config{"url": "https://x.example.com", "headers": map[string]any{"X-Token": "a"}}
	tg, err := New("target-1", "dom-1", TypeWebhook, input)
	require.NoError(t, err)

	input["url"] = "https://changed.example.com"
	input["headers"].(map[string]any)["X-Token"] = "b"
	assert.Equal(t, "https://x.example.com", tg.Config()["url"])

	out := tg.Config()
	out["headers"].(map[string]any)["X-Token"] = "c"
	assert.Equal(t, "a", tg.Config()["headers"].(map[string]any)["X-Token"])
}

func TestTarget_WithConfig(t *testing.T) {
	tg, err := New("target-1", "dom-1", TypeWebhook, Config{
		"url":     "https://x.example.com",
		"headers": map[string]any{"X-Token": "a", "X-Team": "news"},
	})
	require.NoError(t, err)

	next := tg.WithConfig(Config{
		"headers": map[string]any{"X-Token": "rotated"},
		"retries": 3,
	})

	assert.Equal(t, map[string]any{"X-Token": "rotated", "X-Team": "news"}, next.Config()["headers"])
	assert.Equal(t, 3, next.Config()["retries"])
	assert.Equal(t, "https://x.example.com", next.Config()["url"])
	assert.Equal(t, "a", tg.Config()["headers"].(map[string]any)["X-Token"], "receiver changed")
	assert.NotContains(t, tg.Config(), "retries")
}

func TestTarget_WithConfigCanInvalidate(t *testing.T) {
	tg, err := New("target-1", "dom-1", TypeWebhook, Config{"url": "https://x.example.com"})
	require.NoError(t, err)

	next := tg.WithConfig(Config{"url": "not a url"})
	assert.ErrorIs(t, next.Validate(), ErrInvalidTarget)
	assert.NoError(t, tg.Validate())
}

func TestTarget_ToggleEnabled(t *testing.T) {
	tg, err := New("target-1", "dom-1", TypeFacebook, Config{"page_id": "1", "access_token": "tok"})
	require.NoError(t, err)

	off := tg.ToggleEnabled()
	assert.False(t, off.Enabled())
	assert.True(t, tg.Enabled())
	assert.True(t, off.ToggleEnabled().Enabled())
}

func TestTarget_BelongsTo(t *testing.T) {
	tg, err := New("target-1", "dom-1", TypeFacebook, Config{"page_id": "1", "access_token": "tok"})
	require.NoError(t, err)

	assert.True(t, tg.BelongsTo("dom-1"))
	assert.False(t, tg.BelongsTo("dom-2"))
	assert.False(t, tg.BelongsTo(""))
}

func TestTarget_MarshalJSON(t *testing.T) {
	tg, err := New("target-1", "dom-1", TypeLinkedIn, Config{"organization_id": "9", "access_token": "tok"})
	require.NoError(t, err)

	body, err := json.Marshal(tg)
	require.NoError(t, err)

	var got Snapshot
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "target-1", got.ID)
	assert.Equal(t, TypeLinkedIn, got.Type)
	assert.Equal(t, "9", got.Config["organization_id"])
	assert.True(t, got.Enabled)
}
