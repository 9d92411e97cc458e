package servicediscover

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistrationChecksReadiness(t *testing.T) {
	reg := newRegistration("payout", "payout-10.0.0.5-8080", "10.0.0.5", 8080)

	require.Equal(t, "payout", reg.Name)
	require.Equal(t, 8080, reg.Port)
	require.Equal(t, "http://10.0.0.5:8080/readyz", reg.Check.HTTP)
}

func TestNewConsulRegistry(t *testing.T) {
	r, err := NewConsulRegistry("127.0.0.1:8500", "payout", "payout-1", "127.0.0.1", 8080)
	require.NoError(t, err)
	require.Equal(t, "payout-1", r.serviceID)
}
