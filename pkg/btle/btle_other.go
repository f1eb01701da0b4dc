//go:build !linux

package btle

import "github.com/fako1024/gatt"

var (
	defaultBTServerOptions = []gatt.Option{}
)
