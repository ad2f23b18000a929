package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadform/internal/config"
)

// withConfig installs c as the package config for the duration of the test.
func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

// testConfig returns a config that passes validation in every mode, backed
// by a SQLite file in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "leadform.db")
	c.Server.Port = 8080
	c.Server.SessionTTLMins = 60
	c.Server.SinkTimeoutSec = 5
	c.Webhook.URL = "https://hooks.example.com/form"
	c.Webhook.TimeoutSecs = 5
	c.Forms.Path = "forms.yaml"
	c.Enrichment.PersonURL = "https://enrich.example.com/person"
	c.Enrichment.DomainURL = "https://enrich.example.com/domain"
	c.Enrichment.TimeoutMs = 500
	c.Enrichment.CacheTTLHours = 1
	c.Batch.MaxConcurrentLookups = 2
	c.Monitoring.FailureRateThreshold = 0.1
	c.Phone.Region = "US"
	return c
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"serve", "enrich", "stage", "meeting-link", "forms"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "leadform", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.PersistentPreRunE)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestEnrichCommand_HasBatch(t *testing.T) {
	var found bool
	for _, c := range enrichCmd.Commands() {
		if c.Name() == "batch" {
			found = true
		}
	}
	assert.True(t, found, "enrich should have a batch subcommand")
	assert.Error(t, enrichCmd.Args(enrichCmd, nil), "enrich requires an email")
	assert.NoError(t, enrichCmd.Args(enrichCmd, []string{"a@acme.com"}))
}

func TestEnrichBatchCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "output", "limit"} {
		assert.NotNil(t, enrichBatchCmd.Flags().Lookup(name), "enrich batch should have --%s flag", name)
	}
	assert.Equal(t, "0", enrichBatchCmd.Flags().Lookup("limit").DefValue)
}

func TestStageCommand_Flags(t *testing.T) {
	for _, name := range []string{"size", "funding", "profile"} {
		assert.NotNil(t, stageCmd.Flags().Lookup(name), "stage should have --%s flag", name)
	}
	assert.Equal(t, "portal", stageCmd.Flags().Lookup("profile").DefValue)
}

func TestFormsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range formsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["validate"])
	assert.NotNil(t, formsCmd.PersistentFlags().Lookup("path"))
}
