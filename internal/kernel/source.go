// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package kernel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mdlayher/netlink"
	"go.uber.org/zap"

	"github.com/linuxdeepin/go-anything/internal/kernelproto"
)

// backoff bounds for reconnection after a recoverable socket error
// (spec.md §4.2 "recoverable socket errors trigger reconnection with a
// short backoff").
const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 10 * time.Second
)

// Stats counts malformed or dropped messages, for observability (spec.md
// §7).
type Stats struct {
	MalformedMessages atomic.Int64
	Reconnects        atomic.Int64
}

// Source is the single blocking netlink receiver task of spec.md §4.2. It
// owns a generic-netlink socket, joins the kernel module's multicast
// group, and pushes one RawEvent per decoded message onto a bounded
// queue.
type Source struct {
	log        *zap.SugaredLogger
	familyName string
	groupName  string

	Stats Stats
}

// New constructs a Source for the given generic-netlink family and
// multicast group (spec.md §6: family "vfsmonitor", group
// "vfsmonitor_de").
func New(log *zap.SugaredLogger, familyName, groupName string) *Source {
	return &Source{log: log, familyName: familyName, groupName: groupName}
}

// Run dials the socket, resolves the family/group, joins the multicast
// group, and decodes messages into out until ctx is canceled. After any
// socket error it reconnects with exponential backoff (clamped to
// maxBackoff). Errors are not classified: every error is retried, and
// Run returns only once ctx is canceled.
func (s *Source) Run(ctx context.Context, out chan<- kernelproto.RawEvent) error {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.runOnce(ctx, out)
		if err == nil || ctx.Err() != nil {
			return ctx.Err()
		}

		s.Stats.Reconnects.Add(1)
		if s.log != nil {
			s.log.Warnw("netlink source disconnected, reconnecting", "error", err, "backoff", backoff)
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce dials a single socket session and receives until it errors or
// ctx is canceled.
func (s *Source) runOnce(ctx context.Context, out chan<- kernelproto.RawEvent) error {
	conn, err := netlink.Dial(unixAFNetlinkGeneric, &netlink.Config{})
	if err != nil {
		return fmt.Errorf("kernel: dialing generic netlink: %w", err)
	}
	defer conn.Close()

	// Turn off extended acknowledgements: this is a multicast listener,
	// not a request/response session (spec.md §6). Sequence numbers of
	// received multicast messages are not checked by Receive.
	if err := conn.SetOption(netlink.ExtendedAcknowledge, false); err != nil {
		if s.log != nil {
			s.log.Debugw("netlink: SetOption ExtendedAcknowledge failed", "error", err)
		}
	}

	res, err := resolveFamily(conn, s.familyName, s.groupName)
	if err != nil {
		return err
	}

	if err := conn.JoinGroup(uint32(res.groupID)); err != nil {
		return fmt.Errorf("kernel: joining multicast group %q: %w", s.groupName, err)
	}
	_ = res.familyID // retained for symmetry/tests; unicast requests are not used by the listener

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		msgs, err := conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kernel: receive: %w", err)
		}

		for _, msg := range msgs {
			ev, err := decodeEvent(msg)
			if err != nil {
				s.Stats.MalformedMessages.Add(1)
				if s.log != nil {
					s.log.Debugw("dropping malformed kernel message", "error", err)
				}
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// unixAFNetlinkGeneric is the netlink protocol family for generic
// netlink (NETLINK_GENERIC = 16).
const unixAFNetlinkGeneric = 16
