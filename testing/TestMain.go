// Package testing puts the binaries into test mode when imported by a test.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("SETTLEMENT_TEST_MODE", "1")
		if os.Getenv("SETTLEMENT_BACKEND_URL") == "" {
			_ = os.Setenv("SETTLEMENT_BACKEND_URL", "http://127.0.0.1:0")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
