package status

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, apiServer string) {
	t.Setenv("SELLERBOT_CONFIG", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123456789:"+strings.Repeat("A", 35))
	t.Setenv("ADMIN_IDS", "111,222")
	t.Setenv("MAGNIT_API_KEY", "m")
	t.Setenv("OZON_API_KEY", "o")
	t.Setenv("OZON_CLIENT_ID", "1")
	t.Setenv("WAREHOUSE_ID", "WH-7")
	t.Setenv("SELLERBOT_TELEGRAM_API_SERVER", apiServer)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "sellerbot", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("config", t.TempDir()+"/absent.yaml", "")
	root.AddCommand(NewStatusCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestStatus_Local(t *testing.T) {
	setEnv(t, "")

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "Admins: 2")
	assert.Contains(t, out, "warehouse WH-7")
	assert.NotContains(t, out, "Webhook:")
}

func TestStatus_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/getWebhookInfo"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true,"result":{"url":"https://bot.example.com/api/webhook",`+
			`"has_custom_certificate":false,"pending_update_count":3,"last_error_message":"timeout"}}`)
	}))
	defer srv.Close()
	setEnv(t, srv.URL)

	out, err := execute(t, "status", "--remote")
	require.NoError(t, err)
	assert.Contains(t, out, "Webhook: https://bot.example.com/api/webhook")
	assert.Contains(t, out, "Pending updates: 3")
	assert.Contains(t, out, "Last error: timeout")
}

func TestStatus_InvalidConfig(t *testing.T) {
	setEnv(t, "")
	t.Setenv("WAREHOUSE_ID", "")

	_, err := execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WAREHOUSE_ID")
}
