// SPDX-FileCopyrightText: 2023 The jingle7-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package elements

import "fmt"

// Action is the mandatory action attribute of a Message. Every inbound
// request carries exactly one Action which determines its dispatching.
type Action string

const (
	ActionContentAccept    Action = "content-accept"
	ActionContentAdd       Action = "content-add"
	ActionContentModify    Action = "content-modify"
	ActionContentReject    Action = "content-reject"
	ActionContentRemove    Action = "content-remove"
	ActionDescriptionInfo  Action = "description-info"
	ActionSecurityInfo     Action = "security-info"
	ActionSessionAccept    Action = "session-accept"
	ActionSessionInfo      Action = "session-info"
	ActionSessionInitiate  Action = "session-initiate"
	ActionSessionTerminate Action = "session-terminate"
	ActionTransportAccept  Action = "transport-accept"
	ActionTransportInfo    Action = "transport-info"
	ActionTransportReject  Action = "transport-reject"
	ActionTransportReplace Action = "transport-replace"
)

// actions is the set of all valid Actions.
var actions = map[Action]struct{}{
	ActionContentAccept:    {},
	ActionContentAdd:       {},
	ActionContentModify:    {},
	ActionContentReject:    {},
	ActionContentRemove:    {},
	ActionDescriptionInfo:  {},
	ActionSecurityInfo:     {},
	ActionSessionAccept:    {},
	ActionSessionInfo:      {},
	ActionSessionInitiate:  {},
	ActionSessionTerminate: {},
	ActionTransportAccept:  {},
	ActionTransportInfo:    {},
	ActionTransportReject:  {},
	ActionTransportReplace: {},
}

// CheckValid returns an error for an unknown Action.
func (action Action) CheckValid() error {
	if _, ok := actions[action]; !ok {
		return fmt.Errorf("unknown action %q", string(action))
	}
	return nil
}

// IsContentScoped returns true for those Actions which always address
// exactly one content of a session and are delegated to it.
func (action Action) IsContentScoped() bool {
	switch action {
	case ActionContentModify, ActionDescriptionInfo, ActionSecurityInfo,
		ActionTransportAccept, ActionTransportInfo,
		ActionTransportReject, ActionTransportReplace:
		return true
	default:
		return false
	}
}

func (action Action) String() string {
	return string(action)
}
