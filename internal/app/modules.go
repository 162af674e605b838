package app

import (
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/modules/autosql"
	"github.com/vk/taskgrid/modules/copy_table"
	"github.com/vk/taskgrid/modules/dummy"
	"github.com/vk/taskgrid/modules/sql_query"
)

// coreModules is the definitive list of all modules that are compiled into
// the taskgrid binary.
var coreModules = []registry.Module{
	&dummy.Module{},
	&sql_query.Module{},
	&autosql.Module{},
	&copy_table.Module{},
}
