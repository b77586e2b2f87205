package subscription

import "go.uber.org/fx"

// Module exposes the subscription record store via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(func(s *Service) Store { return s }),
)
