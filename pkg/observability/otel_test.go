package observability

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOTel_Disabled(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	providers, err := InitOTel(context.Background(), OTelConfig{}, log)
	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitOTel_RequiresEndpoint(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true, ServiceName: "cura-sessiond"}, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint is required")
}
