package memory

import (
	"testing"

	"github.com/betbot/copybot/internal/ports"
	"github.com/betbot/copybot/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.TradeStore { return New() })
}
