// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package voting implements on-chain polls with one vote per address inside
// a round window
package voting

import (
	"github.com/algocampus/campusd/contract"
	"github.com/algocampus/campusd/ledger"
)

const (
	Kind = "voting"
	Name = "VotingContract"

	MinDeposit uint64 = 1000
)

const (
	MethodCreatePoll          = "create_poll"
	MethodCreatePollAI        = "create_poll_ai"
	MethodCastVote            = "cast_vote"
	MethodCastVoteWithDeposit = "cast_vote_with_deposit"
	MethodGetPoll             = "get_poll"
	MethodGetResult           = "get_result"
)

const (
	ReasonNeedOptions    = "need >=2 options"
	ReasonPollNotFound   = "poll not found"
	ReasonNotStarted     = "not started"
	ReasonEnded          = "ended"
	ReasonBadOption      = "bad option"
	ReasonAlreadyVoted   = "already voted"
	ReasonMissingPayment = "missing deposit payment"
	ReasonPayToApp       = "pay to app"
	ReasonMinDeposit     = "min 1000 deposit"
	ReasonNoSuchOption   = "no such option"
)

const (
	boxQuestion   = "pq"
	boxNumOptions = "pn"
	boxStart      = "ps"
	boxEnd        = "pe"
	boxOption     = "po"
	boxVoteCount  = "vc"
	boxVoterFlag  = "vf"
	counterPolls  = "polls"
)

// PollInfo is returned by get_poll
type PollInfo struct {
	Question   string
	Options    []string
	NumOptions uint64
	StartRound uint64
	EndRound   uint64
}

func init() {
	ledger.RegisterApplication(Kind, New)
}

func New() ledger.Application {
	return contract.NewBase(contract.Methods{
		MethodCreatePoll:          createPoll,
		MethodCreatePollAI:        createPollAI,
		MethodCastVote:            castVote,
		MethodCastVoteWithDeposit: castVoteWithDeposit,
		MethodGetPoll:             getPoll,
		MethodGetResult:           getResult,
	})
}

type pollParams struct {
	question string
	options  []string
	start    uint64
	end      uint64
}

func parsePollParams(c *contract.Call) (pollParams, error) {
	var p pollParams
	var err error
	if p.question, err = c.Args.String(0); err != nil {
		return p, err
	}
	if p.options, err = c.Args.Strings(1); err != nil {
		return p, err
	}
	if p.start, err = c.Args.Uint64(2); err != nil {
		return p, err
	}
	if p.end, err = c.Args.Uint64(3); err != nil {
		return p, err
	}
	if err := contract.RequireRoundRange(p.start, p.end); err != nil {
		return p, err
	}
	if len(p.options) < 2 {
		return p, ledger.Revert(ReasonNeedOptions)
	}
	return p, nil
}

func createPoll(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	p, err := parsePollParams(c)
	if err != nil {
		return nil, err
	}
	return storePoll(c, p)
}

func createPollAI(c *contract.Call) (any, error) {
	if err := c.Auth.RequireAdminOrFaculty(); err != nil {
		return nil, err
	}
	p, err := parsePollParams(c)
	if err != nil {
		return nil, err
	}
	hash, err := c.Args.Bytes(4)
	if err != nil {
		return nil, err
	}
	if err := c.ConsumeIntent(hash); err != nil {
		return nil, err
	}
	return storePoll(c, p)
}

func storePoll(c *contract.Call, p pollParams) (uint64, error) {
	id, err := c.NextID(counterPolls)
	if err != nil {
		return 0, err
	}
	pid := ledger.Itob(id)
	if err := c.Boxes.Put(ledger.BoxName(boxQuestion, pid), []byte(p.question)); err != nil {
		return 0, err
	}
	if err := c.Boxes.PutUint64(ledger.BoxName(boxNumOptions, pid), uint64(len(p.options))); err != nil {
		return 0, err
	}
	if err := c.Boxes.PutUint64(ledger.BoxName(boxStart, pid), p.start); err != nil {
		return 0, err
	}
	if err := c.Boxes.PutUint64(ledger.BoxName(boxEnd, pid), p.end); err != nil {
		return 0, err
	}
	for i, opt := range p.options {
		idx := ledger.Itob(uint64(i))
		if err := c.Boxes.Put(ledger.BoxName(boxOption, pid, idx), []byte(opt)); err != nil {
			return 0, err
		}
		if err := c.Boxes.PutUint64(ledger.BoxName(boxVoteCount, pid, idx), 0); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func doCastVote(c *contract.Call) (any, error) {
	pollID, err := c.Args.Uint64(0)
	if err != nil {
		return nil, err
	}
	option, err := c.Args.Uint64(1)
	if err != nil {
		return nil, err
	}
	pid := ledger.Itob(pollID)
	numOptions, ok, err := c.Boxes.GetUint64(ledger.BoxName(boxNumOptions, pid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.Revert(ReasonPollNotFound)
	}
	start, _, err := c.Boxes.GetUint64(ledger.BoxName(boxStart, pid))
	if err != nil {
		return nil, err
	}
	if c.Round < start {
		return nil, ledger.Revert(ReasonNotStarted)
	}
	end, _, err := c.Boxes.GetUint64(ledger.BoxName(boxEnd, pid))
	if err != nil {
		return nil, err
	}
	if c.Round > end {
		return nil, ledger.Revert(ReasonEnded)
	}
	if option >= numOptions {
		return nil, ledger.Revert(ReasonBadOption)
	}
	voterKey := ledger.BoxName(boxVoterFlag, pid, c.Sender[:])
	voted, err := c.Boxes.Has(voterKey)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, ledger.Revert(ReasonAlreadyVoted)
	}
	if err := c.Boxes.Put(voterKey, []byte{1}); err != nil {
		return nil, err
	}
	countKey := ledger.BoxName(boxVoteCount, pid, ledger.Itob(option))
	count, _, err := c.Boxes.GetUint64(countKey)
	if err != nil {
		return nil, err
	}
	if err := c.Boxes.PutUint64(countKey, count+1); err != nil {
		return nil, err
	}
	return true, nil
}

func castVote(c *contract.Call) (any, error) {
	return doCastVote(c)
}

// castVoteWithDeposit requires the first payment of the atomic group to
// deposit at least MinDeposit into the application account
func castVoteWithDeposit(c *contract.Call) (any, error) {
	if len(c.Group) == 0 {
		return nil, ledger.Revert(ReasonMissingPayment)
	}
	pay := c.Group[0]
	if pay.Receiver != c.AppAddress {
		return nil, ledger.Revert(ReasonPayToApp)
	}
	if pay.Amount < MinDeposit {
		return nil, ledger.Revert(ReasonMinDeposit)
	}
	return doCastVote(c)
}

func getPoll(c *contract.Call) (any, error) {
	pollID, err := c.Args.Uint64(0)
	if err != nil {
		return nil, err
	}
	pid := ledger.Itob(pollID)
	question, ok, err := c.Boxes.Get(ledger.BoxName(boxQuestion, pid))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.Revert(ReasonPollNotFound)
	}
	ret := PollInfo{Question: string(question)}
	if ret.NumOptions, _, err = c.Boxes.GetUint64(ledger.BoxName(boxNumOptions, pid)); err != nil {
		return nil, err
	}
	if ret.StartRound, _, err = c.Boxes.GetUint64(ledger.BoxName(boxStart, pid)); err != nil {
		return nil, err
	}
	if ret.EndRound, _, err = c.Boxes.GetUint64(ledger.BoxName(boxEnd, pid)); err != nil {
		return nil, err
	}
	ret.Options = make([]string, 0, ret.NumOptions)
	for idx := range ret.NumOptions {
		label, _, err := c.Boxes.Get(ledger.BoxName(boxOption, pid, ledger.Itob(idx)))
		if err != nil {
			return nil, err
		}
		ret.Options = append(ret.Options, string(label))
	}
	return ret, nil
}

func getResult(c *contract.Call) (any, error) {
	pollID, err := c.Args.Uint64(0)
	if err != nil {
		return nil, err
	}
	option, err := c.Args.Uint64(1)
	if err != nil {
		return nil, err
	}
	count, ok, err := c.Boxes.GetUint64(
		ledger.BoxName(boxVoteCount, ledger.Itob(pollID), ledger.Itob(option)),
	)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ledger.Revert(ReasonNoSuchOption)
	}
	return count, nil
}
