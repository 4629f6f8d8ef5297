package app

import (
	"github.com/specialistvlad/graphjob/internal/registry"
	"github.com/specialistvlad/graphjob/modules/localfs"
)

// coreModules is the definitive list of all integrations that are compiled
// into the graphjob binary.
var coreModules = []registry.Module{
	&localfs.Module{},
}
