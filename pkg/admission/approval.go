// Package admission decides whether a connection may join.
//
// Admission happens in two places. Before the handshake starts, an Approver
// gates the raw connection. After the identity is resolved, the Controller
// runs the connecting hook, deduplicates the identity against live sessions
// by kicking the old session and waiting for its teardown, and finally
// registers the new session.
package admission

import (
	"context"
	"net"
)

// DenyReason is a structured refusal: a short text plus free-form
// diagnostic properties sent back to the client.
type DenyReason struct {
	Text       string
	Properties map[string]string
}

// Deny returns a DenyReason with the given text.
func Deny(text string) *DenyReason {
	return &DenyReason{Text: text}
}

// With adds a property and returns d.
func (d *DenyReason) With(key, value string) *DenyReason {
	if d.Properties == nil {
		d.Properties = make(map[string]string)
	}
	d.Properties[key] = value
	return d
}

// ApprovalRequest describes a connection waiting for approval.
type ApprovalRequest struct {
	ConnID     uint64
	RemoteAddr net.Addr
}

// Approval is the outcome of an Approver.
type Approval struct {
	Approved bool
	Deny     *DenyReason
}

// Approved is the approving result.
var Approved = Approval{Approved: true}

// Denied returns a refusing result.
func Denied(reason *DenyReason) Approval {
	return Approval{Deny: reason}
}

// Approver gates connections before the handshake. A returned error is an
// internal fault.
type Approver interface {
	Approve(ctx context.Context, req ApprovalRequest) (Approval, error)
}

// ApproverFunc adapts a function to the Approver interface.
type ApproverFunc func(ctx context.Context, req ApprovalRequest) (Approval, error)

// Approve calls f.
func (f ApproverFunc) Approve(ctx context.Context, req ApprovalRequest) (Approval, error) {
	return f(ctx, req)
}

// Chain runs approvers in order and returns the first refusal.
func Chain(approvers ...Approver) Approver {
	return ApproverFunc(func(ctx context.Context, req ApprovalRequest) (Approval, error) {
		for _, a := range approvers {
			if a == nil {
				continue
			}
			res, err := a.Approve(ctx, req)
			if err != nil || !res.Approved {
				return res, err
			}
		}
		return Approved, nil
	})
}
