package core

import (
	"os"
	"testing"

	"github.com/giantswarm/pgtestenv/internal/fakepg"
)

func TestMain(m *testing.M) {
	fakepg.Main()
	os.Exit(m.Run())
}
