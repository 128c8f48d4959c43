package extract

import (
	"testing"

	"go.uber.org/goleak"
)

// Each extraction is one synchronous call; nothing may outlive Run.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
