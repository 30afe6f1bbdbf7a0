// Mgmt
// Copyright (C) 2013-2017+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package event provides the control-signal primitives used to pause and
// cancel a running inference loop between steps. Spec §5 requires that a
// long-running infer loop never be interrupted mid-step (a half-finished
// detach/regen would leave the trace in the torus state), so every signal
// here is consumed only at a step boundary, never inside one.
package event

import (
	"fmt"
)

// Kind represents the type of control signal being passed to a running
// infer loop.
type Kind int

// The different signal kinds the engine driver's infer loop recognizes.
const (
	KindNil Kind = iota
	KindPause
	KindResume
	KindAbort // finish the current step, then stop iterating
)

func (k Kind) String() string {
	switch k {
	case KindPause:
		return "pause"
	case KindResume:
		return "resume"
	case KindAbort:
		return "abort"
	default:
		return "nil"
	}
}

// Resp is a channel used for boolean responses. A nil error represents an
// ACK; a non-nil error is a NACK and may carry a reason.
type Resp chan error

// Msg is a single control signal together with an optional response channel.
type Msg struct {
	Kind Kind
	Resp Resp // channel to send an ack response on, nil to skip
	Err  error
}

// ACK sends a single acknowledgement on the channel if one was requested.
func (msg *Msg) ACK() {
	if msg.Resp != nil {
		msg.Resp.ACK()
	}
}

// NACK sends a negative acknowledgement on the channel if one was requested.
func (msg *Msg) NACK() {
	if msg.Resp != nil {
		msg.Resp.NACK()
	}
}

// NewResp returns a new, unbuffered response channel.
func NewResp() Resp {
	return make(chan error)
}

// ACK sends a nil (success) value to resp.
func (resp Resp) ACK() {
	if resp != nil {
		resp <- nil
	}
}

// NACK sends a generic failure value to resp.
func (resp Resp) NACK() {
	if resp != nil {
		resp <- fmt.Errorf("nack")
	}
}

// Wait blocks for any response on resp and returns it.
func (resp Resp) Wait() error {
	return <-resp
}
