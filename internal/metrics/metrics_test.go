package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Повторная регистрация не должна паниковать.
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/api/v1/orders", "200")
		IncOrderCreated("service")
		IncStatusTransition("pending", "approved")
		IncSheetsSyncFailure()
	})
}
