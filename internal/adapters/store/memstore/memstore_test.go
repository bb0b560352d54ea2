package memstore

import (
	"testing"

	"github.com/dkeye/Poker/internal/adapters/store/storetest"
	"github.com/dkeye/Poker/internal/core"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.DocumentStore { return New() })
}
