// Copyright (C) 2019-2025 Algorand, Inc.
// This file is part of go-blocklattice
//
// go-blocklattice is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-blocklattice is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-blocklattice.  If not, see <https://www.gnu.org/licenses/>.

package protocol

// Tag represents a message type identifier.
type Tag string

// Tags, in lexicographic sort order of tag values to avoid duplicates.
const (
	UnknownMsgTag    Tag = "??"
	BulkPullTag      Tag = "BP"
	ConfirmAckTag    Tag = "CA"
	ConfirmReqTag    Tag = "CR"
	PublishTag       Tag = "PB"
	VoteFloodTag     Tag = "VF"
	VotePrincipalTag Tag = "VP"
)

// TagList lists every tag a node sends.
var TagList = []Tag{
	BulkPullTag,
	ConfirmAckTag,
	ConfirmReqTag,
	PublishTag,
	VoteFloodTag,
	VotePrincipalTag,
}

// Complement returns the tag of the reply to a request tag.
func (t Tag) Complement() Tag {
	switch t {
	case ConfirmReqTag:
		return ConfirmAckTag
	case ConfirmAckTag:
		return ConfirmReqTag
	default:
		return UnknownMsgTag
	}
}
