// Package tictactoe embeds the browser client served at "/".
package tictactoe

import "embed"

//go:embed web
var WebFS embed.FS
