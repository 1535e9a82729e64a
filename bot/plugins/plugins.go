// Package plugins bundles the built-in handler units shipped with the bot.
package plugins

import (
	"github.com/boo-chat/boo/bot/plugin"
	"github.com/boo-chat/boo/bot/plugins/archive"
	"github.com/boo-chat/boo/bot/plugins/auth"
	"github.com/boo-chat/boo/bot/plugins/core"
	"github.com/boo-chat/boo/bot/plugins/echo"
	"github.com/boo-chat/boo/bot/plugins/eightball"
	"github.com/boo-chat/boo/bot/plugins/youtube"
)

// Default returns the built-in unit registrations in their canonical order.
// The order decides command ownership when two units declare the same token:
// earlier registrations win.
func Default() []plugin.Registration {
	return []plugin.Registration{
		{Name: "core", New: core.New},
		{Name: "echo", New: echo.New},
		{Name: "eightball", New: eightball.New},
		{Name: "youtube", New: youtube.New},
		{Name: "archive", New: archive.New},
		{Name: "auth", New: auth.New},
	}
}
