package feedback

import (
	"testing"

	"go.uber.org/goleak"
)

// Every test drains its service, so no delivery goroutine may outlive it.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
