// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package kernel implements the blocking generic-netlink event source of
// spec.md §4.2: it resolves the kernel module's family and multicast
// group, joins the group, and decodes one RawEvent per received message.
//
// The pack's go.mod brings in the low-level github.com/mdlayher/netlink
// conn but not a genetlink wrapper package, so family/group resolution
// (CTRL_CMD_GETFAMILY) is implemented directly against netlink.Conn here,
// the same way mdlayher/genetlink itself is built on top of
// mdlayher/netlink (DESIGN.md ledger entry for this package).
package kernel

import (
	"fmt"

	"github.com/mdlayher/netlink"
)

const (
	genlIDCtrl = 0x10 // GENL_ID_CTRL

	ctrlCmdGetFamily = 3

	ctrlAttrFamilyID   uint16 = 1
	ctrlAttrFamilyName uint16 = 2
	ctrlAttrMcastGroup uint16 = 7 // CTRL_ATTR_MCAST_GROUPS, nested

	ctrlAttrMcastGroupName uint16 = 1 // within a CTRL_ATTR_MCAST_GROUPS entry
	ctrlAttrMcastGroupID   uint16 = 2
)

// genlHeader is the 4-byte generic-netlink header prefixing every
// message's payload: cmd, version, two reserved bytes.
type genlHeader struct {
	Command uint8
	Version uint8
}

func (h genlHeader) encode() []byte {
	return []byte{h.Command, h.Version, 0, 0}
}

// resolved holds what resolveFamily needs from one CTRL_CMD_GETFAMILY
// round trip: the numeric family id used as the netlink message type for
// subsequent sends, and the multicast group id to join.
type resolved struct {
	familyID uint16
	groupID  uint32
}

// resolveFamily asks the kernel's generic-netlink controller for
// familyName's numeric id and groupName's multicast group id (spec.md §6:
// "Family resolution uses genl_ctrl_resolve; group resolution uses
// genl_ctrl_resolve_grp").
func resolveFamily(conn *netlink.Conn, familyName, groupName string) (resolved, error) {
	ad := netlink.NewAttributeEncoder()
	ad.String(ctrlAttrFamilyName, familyName)
	attrs, err := ad.Encode()
	if err != nil {
		return resolved{}, fmt.Errorf("kernel: encoding family name attribute: %w", err)
	}

	payload := append(genlHeader{Command: ctrlCmdGetFamily, Version: 1}.encode(), attrs...)

	req := netlink.Message{
		Header: netlink.Header{
			Type:  netlink.HeaderType(genlIDCtrl),
			Flags: netlink.Request | netlink.Acknowledge,
		},
		Data: payload,
	}

	replies, err := conn.Execute(req)
	if err != nil {
		return resolved{}, fmt.Errorf("kernel: resolving family %q: %w", familyName, err)
	}

	for _, reply := range replies {
		if len(reply.Data) < 4 {
			continue
		}
		res, found, err := parseFamilyReply(reply.Data[4:], groupName)
		if err != nil {
			return resolved{}, err
		}
		if found {
			return res, nil
		}
	}

	return resolved{}, fmt.Errorf("kernel: family %q or group %q not found in controller reply", familyName, groupName)
}

// parseFamilyReply walks the CTRL_CMD_GETFAMILY response attributes,
// looking for CTRL_ATTR_FAMILY_ID and, nested under
// CTRL_ATTR_MCAST_GROUPS, an entry named groupName.
func parseFamilyReply(data []byte, groupName string) (resolved, bool, error) {
	ad, err := netlink.NewAttributeDecoder(data)
	if err != nil {
		return resolved{}, false, fmt.Errorf("kernel: decoding controller reply: %w", err)
	}

	var res resolved
	haveFamily := false
	haveGroup := false

	for ad.Next() {
		switch ad.Type() {
		case ctrlAttrFamilyID:
			res.familyID = ad.Uint16()
			haveFamily = true
		case ctrlAttrMcastGroup:
			groups, err := netlink.NewAttributeDecoder(ad.Bytes())
			if err != nil {
				continue
			}
			for groups.Next() {
				// Each top-level index is itself a nested attribute
				// containing NAME/ID pairs for one multicast group.
				entry, err := netlink.NewAttributeDecoder(groups.Bytes())
				if err != nil {
					continue
				}
				var name string
				var id uint32
				for entry.Next() {
					switch entry.Type() {
					case ctrlAttrMcastGroupName:
						name = entry.String()
					case ctrlAttrMcastGroupID:
						id = entry.Uint32()
					}
				}
				if name == groupName {
					res.groupID = id
					haveGroup = true
				}
			}
		}
	}
	if err := ad.Err(); err != nil {
		return resolved{}, false, fmt.Errorf("kernel: decoding controller reply attributes: %w", err)
	}

	return res, haveFamily && haveGroup, nil
}
