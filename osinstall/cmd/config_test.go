package cmd

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"osinstall/internal/config"
)

func TestConfigCmd(t *testing.T) {
	env := setupMocks(t)

	output, err := executeCommand(rootCmd, "config", "--config", env.configPath, "--device", "/dev/vdb")
	if err != nil {
		t.Fatalf("config returned an error: %v", err)
	}
	if strings.Contains(output, "s3cr3t") {
		t.Errorf("config output leaked a password:\n%s", output)
	}

	var got config.Settings
	if err := yaml.Unmarshal([]byte(output), &got); err != nil {
		t.Fatalf("config output is not valid YAML: %v\n%s", err, output)
	}
	if got.Device != "/dev/vdb" {
		t.Errorf("device = %q, want the --device override", got.Device)
	}
	if got.RootPassword != "********" || got.UserPassword != "********" {
		t.Errorf("passwords not masked: %q %q", got.RootPassword, got.UserPassword)
	}
	if got.Hostname != "testhost" || got.Timezone != "UTC" {
		t.Errorf("hostname/timezone = %q/%q, want file value and default", got.Hostname, got.Timezone)
	}
}

func TestConfigCmd_Environment(t *testing.T) {
	env := setupMocks(t)
	t.Setenv(config.EnvDevice, "/dev/vdc")

	output, err := executeCommand(rootCmd, "config", "--config", env.configPath)
	if err != nil {
		t.Fatalf("config returned an error: %v", err)
	}
	if !strings.Contains(output, "device: /dev/vdc") {
		t.Errorf("environment override not applied:\n%s", output)
	}
}

func TestConfigCmd_Invalid(t *testing.T) {
	setupMocks(t)

	output, err := executeCommand(rootCmd, "config")
	if err == nil {
		t.Fatal("config without passwords should fail validation")
	}
	if !strings.Contains(err.Error(), "validate config") {
		t.Errorf("error = %v, want a validation error", err)
	}
	if !strings.Contains(output, "device: /dev/sda") {
		t.Errorf("effective configuration should still be printed:\n%s", output)
	}
}
