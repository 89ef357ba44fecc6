package minio

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			cfg:         Config{Endpoint: "https://minio.example.com:9000", AccessKey: "test-access-key", SecretKey: "test-secret-key"},
			expectError: false,
		},
		{
			name:        "missing access key",
			cfg:         Config{Endpoint: "https://minio.example.com:9000", SecretKey: "test-secret-key"},
			expectError: true,
			errorMsg:    "MINIO_ACCESS_KEY or MINIO_ACCESS_KEY_ID environment variable is required",
		},
		{
			name:        "missing secret key",
			cfg:         Config{Endpoint: "https://minio.example.com:9000", AccessKey: "test-access-key"},
			expectError: true,
			errorMsg:    "MINIO_SECRET_KEY or MINIO_SECRET_ACCESS_KEY environment variable is required",
		},
		{
			name:        "endpoint without scheme",
			cfg:         Config{Endpoint: "minio.example.com:9000", AccessKey: "a", SecretKey: "b"},
			expectError: true,
			errorMsg:    "invalid MINIO_ENDPOINT",
		},
		{
			name:        "endpoint without host",
			cfg:         Config{Endpoint: "https://", AccessKey: "a", SecretKey: "b"},
			expectError: true,
			errorMsg:    "missing hostname",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.cfg)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, client)
				if tt.errorMsg != "" {
					assert.Contains(t, err.Error(), tt.errorMsg)
				}
			} else {
				assert.NoError(t, err)
				require.NotNil(t, client)
				assert.Equal(t, DefaultBucket, client.bucket)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		envVars   map[string]string
		enabled   bool
		accessKey string
		secretKey string
		bucket    string
	}{
		{
			name:    "disabled without endpoint",
			envVars: map[string]string{"MINIO_ACCESS_KEY": "a"},
			enabled: false,
			bucket:  DefaultBucket,
		},
		{
			name: "short variable names",
			envVars: map[string]string{
				"MINIO_ENDPOINT":   "https://minio.example.com",
				"MINIO_ACCESS_KEY": "access",
				"MINIO_SECRET_KEY": "secret",
				"MINIO_BUCKET":     "reports",
			},
			enabled:   true,
			accessKey: "access",
			secretKey: "secret",
			bucket:    "reports",
		},
		{
			name: "_ID suffix names",
			envVars: map[string]string{
				"MINIO_ENDPOINT":          "https://minio.example.com",
				"MINIO_ACCESS_KEY_ID":     "access-id",
				"MINIO_SECRET_ACCESS_KEY": "secret-key",
			},
			enabled:   true,
			accessKey: "access-id",
			secretKey: "secret-key",
			bucket:    DefaultBucket,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{
				"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_ACCESS_KEY_ID",
				"MINIO_SECRET_KEY", "MINIO_SECRET_ACCESS_KEY", "MINIO_BUCKET", "MINIO_PREFIX",
			} {
				t.Setenv(key, "")
			}
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, enabled := ConfigFromEnv()
			assert.Equal(t, tt.enabled, enabled)
			assert.Equal(t, tt.accessKey, cfg.AccessKey)
			assert.Equal(t, tt.secretKey, cfg.SecretKey)
			assert.Equal(t, tt.bucket, cfg.Bucket)
			assert.Equal(t, 3, cfg.Upload.MaxAttempts)
		})
	}
}

func TestObjectName(t *testing.T) {
	report := &types.RunReport{
		RunID:     "0b4e7c1a",
		StartedAt: time.Date(2025, 3, 1, 23, 30, 0, 0, time.FixedZone("KST", 9*3600)),
	}

	assert.Equal(t, "2025-03-01/0b4e7c1a.json", ObjectName("", report))
	assert.Equal(t, "resolver/2025-03-01/0b4e7c1a.json", ObjectName("/resolver/", report))
}

// Requires a reachable MinIO server configured through MINIO_* variables
func TestUploadReport(t *testing.T) {
	if os.Getenv("MINIO_ENDPOINT") == "" {
		t.Skip("MINIO_ENDPOINT not set")
	}
	cfg, _ := ConfigFromEnv()
	client, err := NewClient(cfg)
	require.NoError(t, err)

	report := &types.RunReport{RunID: "test-" + time.Now().Format("150405"), StartedAt: time.Now(), Status: types.StatusCompleted}
	object, err := client.UploadReport(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, ObjectName(cfg.Prefix, report), object)
}
