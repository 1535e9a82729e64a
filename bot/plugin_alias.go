package bot

import "github.com/boo-chat/boo/bot/plugin"

type (
	Unit         = plugin.Unit
	UnitFactory  = plugin.Factory
	UnitInfo     = plugin.Info
	UnitAPI      = plugin.API
	Registration = plugin.Registration
)

var (
	ErrUnitsDisabled    = plugin.ErrDisabled
	ErrUnknownUnit      = plugin.ErrUnknownUnit
	ErrUnitNameConflict = plugin.ErrNameConflict
	ErrUnitFailed       = plugin.ErrUnitFailed
)
