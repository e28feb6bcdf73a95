// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel

import (
	"fmt"

	"github.com/mdlayher/netlink"

	"github.com/linuxdeepin/go-anything/internal/kernelproto"
)

// decodeEvent parses one netlink message's generic-netlink payload into a
// RawEvent using the attribute layout of spec.md §6.
func decodeEvent(msg netlink.Message) (kernelproto.RawEvent, error) {
	if len(msg.Data) < 4 {
		return kernelproto.RawEvent{}, fmt.Errorf("kernel: message too short for genl header (%d bytes)", len(msg.Data))
	}

	ad, err := netlink.NewAttributeDecoder(msg.Data[4:])
	if err != nil {
		return kernelproto.RawEvent{}, fmt.Errorf("kernel: decoding attributes: %w", err)
	}

	var ev kernelproto.RawEvent
	var haveAction, havePath bool

	for ad.Next() {
		switch ad.Type() {
		case kernelproto.AttrAction:
			ev.Action = kernelproto.Action(ad.Uint8())
			haveAction = true
		case kernelproto.AttrCookie:
			ev.Cookie = ad.Uint32()
		case kernelproto.AttrMajor:
			ev.Major = ad.Uint16()
		case kernelproto.AttrMinor:
			ev.Minor = uint8(ad.Uint8())
		case kernelproto.AttrPath:
			ev.Path = ad.String()
			havePath = true
		}
	}
	if err := ad.Err(); err != nil {
		return kernelproto.RawEvent{}, fmt.Errorf("kernel: attribute decode error: %w", err)
	}

	if !haveAction || !havePath {
		return kernelproto.RawEvent{}, fmt.Errorf("kernel: message missing required attribute(s)")
	}
	if len(ev.Path) > kernelproto.MaxPathLen {
		return kernelproto.RawEvent{}, fmt.Errorf("kernel: path exceeds %d bytes", kernelproto.MaxPathLen)
	}
	if ev.Path == "" || ev.Path[0] != '/' {
		return kernelproto.RawEvent{}, fmt.Errorf("kernel: path %q is not absolute-relative", ev.Path)
	}

	return ev, nil
}
