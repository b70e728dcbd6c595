package staticauth

import (
	"context"

	"tokendrop/contexts/token-distribution/airdrop-service/domain/valueobjects"
	"tokendrop/contexts/token-distribution/airdrop-service/ports"
)

// Gate authorizes against a fixed controller allow-list, typically loaded
// from process configuration.
type Gate struct {
	controllers map[valueobjects.Identity]struct{}
}

func NewGate(controllers []valueobjects.Identity) *Gate {
	set := make(map[valueobjects.Identity]struct{}, len(controllers))
	for _, controller := range controllers {
		if controller.IsAnonymous() {
			continue
		}
		set[controller] = struct{}{}
	}
	return &Gate{controllers: set}
}

func (g *Gate) IsController(_ context.Context, caller valueobjects.Identity) bool {
	_, ok := g.controllers[caller]
	return ok
}

var _ ports.AuthorizationGate = (*Gate)(nil)
