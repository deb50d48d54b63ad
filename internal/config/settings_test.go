package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	s := Load()
	assert.Equal(t, "8080", s.ServerPort)
	assert.Equal(t, "https://api-bakong.nbc.gov.kh", s.BakongAPIURL)
	assert.Equal(t, "5999", s.MerchantMCC)
	assert.Equal(t, "", s.LedgerRedisURL)
	assert.Equal(t, 10*time.Second, s.HTTPTimeout)
	assert.Equal(t, 3, s.HTTPRetries)
	assert.Equal(t, 15*time.Second, s.ReconcileInterval)
	assert.Equal(t, 4, s.ReconcileWorkers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("BAKONG_TOKEN", "tok")
	t.Setenv("HTTP_RETRIES", "5")
	t.Setenv("HTTP_TIMEOUT", "2s")
	t.Setenv("RECONCILE_INTERVAL", "1m")

	s := Load()
	assert.Equal(t, "9999", s.ServerPort)
	assert.Equal(t, "tok", s.BakongToken)
	assert.Equal(t, 5, s.HTTPRetries)
	assert.Equal(t, 2*time.Second, s.HTTPTimeout)
	assert.Equal(t, time.Minute, s.ReconcileInterval)
}

func TestInvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("HTTP_RETRIES", "not-a-number")
	t.Setenv("HTTP_TIMEOUT", "soon")

	s := Load()
	assert.Equal(t, 3, s.HTTPRetries)
	assert.Equal(t, 10*time.Second, s.HTTPTimeout)
}
