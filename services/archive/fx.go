package archive

import "go.uber.org/fx"

var Module = fx.Module("archive.service",
	fx.Provide(
		ProvideSink,
		NewService,
	),
)

// Worker mounts the archive task handler. Include it only in the worker binary.
var Worker = fx.Module("archive.worker",
	fx.Invoke(Register),
)
